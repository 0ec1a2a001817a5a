package ntrcconfig_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcconfig"
)

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ntrcconfig.Resolve(
		ntrcconfig.WithFS(fstest.MapFS{}),
		ntrcconfig.WithEnvironment(map[string]string{}),
	)
	if err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, ntrcconfig.Default(), cfg)
	AssertEqual(t, ntrc.LevelDetail, cfg.Level)
	AssertEqual(t, 200, cfg.Values.MaxStringLength)
}

func TestResolveFiles(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		file string
		data string
		want ntrcconfig.Config
	}{
		{
			name: "yaml",
			file: "narrativetrace.yaml",
			data: "level: summary\nvalues:\n  max_string_length: 40\n",
			want: ntrcconfig.Config{Level: ntrc.LevelSummary, Values: ntrcconfig.ValueLimits{MaxStringLength: 40, MaxCollectionItems: 5, MaxObjectFields: 5}},
		},
		{
			name: "yml",
			file: "narrativetrace.yml",
			data: "level: errors\n",
			want: ntrcconfig.Config{Level: ntrc.LevelErrors, Values: ntrcconfig.Default().Values},
		},
		{
			name: "toml",
			file: "narrativetrace.toml",
			data: "level = \"narrative\"\n\n[values]\nmax_collection_items = 10\n",
			want: ntrcconfig.Config{Level: ntrc.LevelNarrative, Values: ntrcconfig.ValueLimits{MaxStringLength: 200, MaxCollectionItems: 10, MaxObjectFields: 5}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fsys := fstest.MapFS{"conf/" + tc.file: {Data: []byte(tc.data)}}
			cfg, err := ntrcconfig.Resolve(
				ntrcconfig.WithFS(fsys),
				ntrcconfig.WithSearchPaths("conf"),
				ntrcconfig.WithEnvironment(map[string]string{}),
			)
			if err != nil {
				t.Fatal(err)
			}
			AssertEqual(t, tc.want, cfg)
		})
	}
}

func TestResolveEnvironmentOverridesFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"narrativetrace.yaml": {Data: []byte("level: summary\n")}}
	cfg, err := ntrcconfig.Resolve(
		ntrcconfig.WithFS(fsys),
		ntrcconfig.WithEnvironment(map[string]string{
			"NARRATIVETRACE_LEVEL":                    "off",
			"NARRATIVETRACE_VALUES_MAX_OBJECT_FIELDS": "2",
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, ntrc.LevelOff, cfg.Level)
	AssertEqual(t, 2, cfg.Values.MaxObjectFields)
	AssertEqual(t, 2, cfg.Renderer().MaxObjectFields)
	AssertEqual(t, ntrc.LevelOff, cfg.LevelVar().Level())
}

func TestResolveDuplicates(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		fsys  fstest.MapFS
		paths []string
		want  []string
	}{
		{
			name:  "same directory",
			fsys:  fstest.MapFS{"a/narrativetrace.yaml": {}, "a/narrativetrace.toml": {}},
			paths: []string{"a"},
			want:  []string{"a/narrativetrace.yaml", "a/narrativetrace.toml"},
		},
		{
			name:  "different directories",
			fsys:  fstest.MapFS{"a/narrativetrace.yaml": {}, "b/narrativetrace.yaml": {}},
			paths: []string{"a", "b"},
			want:  []string{"a/narrativetrace.yaml", "b/narrativetrace.yaml"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ntrcconfig.Resolve(
				ntrcconfig.WithFS(tc.fsys),
				ntrcconfig.WithSearchPaths(tc.paths...),
				ntrcconfig.WithEnvironment(map[string]string{}),
			)

			var dce *ntrcconfig.DuplicateConfigurationError
			if !errors.As(err, &dce) {
				t.Fatalf("want DuplicateConfigurationError, have %v", err)
			}
			AssertEqual(t, tc.want, dce.Locations)
			AssertEqual(t, true, ntrcconfig.IsDuplicate(err))
		})
	}

	t.Run("repeated search path is not a duplicate", func(t *testing.T) {
		t.Parallel()

		_, err := ntrcconfig.Resolve(
			ntrcconfig.WithFS(fstest.MapFS{"a/narrativetrace.yaml": {Data: []byte("level: detail\n")}}),
			ntrcconfig.WithSearchPaths("a", "a/"),
			ntrcconfig.WithEnvironment(map[string]string{}),
		)
		AssertEqual[error](t, nil, err)
	})
}

func TestResolveInvalid(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		fsys fstest.MapFS
		env  map[string]string
	}{
		{"bad level in file", fstest.MapFS{"narrativetrace.yaml": {Data: []byte("level: loud\n")}}, nil},
		{"malformed yaml", fstest.MapFS{"narrativetrace.yaml": {Data: []byte("level: [\n")}}, nil},
		{"malformed toml", fstest.MapFS{"narrativetrace.toml": {Data: []byte("level = \n")}}, nil},
		{"bad level in env", fstest.MapFS{}, map[string]string{"NARRATIVETRACE_LEVEL": "loud"}},
		{"negative limit", fstest.MapFS{}, map[string]string{"NARRATIVETRACE_VALUES_MAX_STRING_LENGTH": "-1"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := tc.env
			if env == nil {
				env = map[string]string{}
			}
			if _, err := ntrcconfig.Resolve(ntrcconfig.WithFS(tc.fsys), ntrcconfig.WithEnvironment(env)); err == nil {
				t.Errorf("want error, have none")
			}
		})
	}
}

func TestResolveIgnoresDirectories(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"narrativetrace.yaml/nested": {}}
	cfg, err := ntrcconfig.Resolve(ntrcconfig.WithFS(fsys), ntrcconfig.WithEnvironment(map[string]string{}))
	if err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, ntrcconfig.Default(), cfg)
}

func TestResolveOSFilesystem(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "narrativetrace.yaml"), []byte("level: narrative\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ntrcconfig.Resolve(
		ntrcconfig.WithSearchPaths(dir),
		ntrcconfig.WithEnvironment(map[string]string{}),
	)
	if err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, ntrc.LevelNarrative, cfg.Level)
}

func TestMustResolvePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Errorf("want panic, have none")
		}
	}()
	ntrcconfig.MustResolve(
		ntrcconfig.WithFS(fstest.MapFS{"narrativetrace.yaml": {}, "narrativetrace.yml": {}}),
		ntrcconfig.WithEnvironment(map[string]string{}),
	)
}

func AssertEqual[T any](t *testing.T, want, have T) {
	t.Helper()
	if diff := cmp.Diff(want, have); diff != "" {
		t.Fatalf("(-want +have)\n%s", diff)
	}
}
