// Package ntrcutil contains small formatting helpers shared by the renderers
// and the command line tool.
package ntrcutil
