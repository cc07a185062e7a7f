package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bob-anderson-ok/emregister/internal/config"
)

func writeParams(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json5")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write params: %v", err)
	}
	return path
}

func TestLoadRegisterOptionsDefaults(t *testing.T) {
	path := writeParams(t, `{
		input_mosaic: "in.mosaic",
		output_mosaic: "out.mosaic",
		tile_path: "/tiles",
	}`)
	opts, err := config.LoadRegisterOptions(path)
	if err != nil {
		t.Fatalf("LoadRegisterOptions: %v", err)
	}
	if opts.MinOverlapFraction != 0.05 || opts.WorkingScale != 1.0 {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if opts.InputMosaic != "in.mosaic" || opts.TilePath != "/tiles" {
		t.Fatalf("unexpected field values: %+v", opts)
	}
}

func TestLoadRegisterOptionsMissingField(t *testing.T) {
	path := writeParams(t, `{ output_mosaic: "out.mosaic", tile_path: "/tiles" }`)
	if _, err := config.LoadRegisterOptions(path); err == nil {
		t.Fatalf("expected error for missing input_mosaic")
	}
}

func TestLoadRegisterOptionsWrongType(t *testing.T) {
	path := writeParams(t, `{
		input_mosaic: "in.mosaic",
		output_mosaic: "out.mosaic",
		tile_path: "/tiles",
		min_overlap_fraction: "not a number",
	}`)
	if _, err := config.LoadRegisterOptions(path); err == nil {
		t.Fatalf("expected error for wrong-typed min_overlap_fraction")
	}
}

func TestLoadSliceToSliceOptionsAngleSearch(t *testing.T) {
	path := writeParams(t, `{
		fixed_path: "fixed.png",
		moving_path: "moving.png",
		output_stos: "out.stos",
		angle_search: [-2, 0, 2],
	}`)
	opts, err := config.LoadSliceToSliceOptions(path)
	if err != nil {
		t.Fatalf("LoadSliceToSliceOptions: %v", err)
	}
	if len(opts.AngleSearch) != 3 || opts.AngleSearch[1] != 0 {
		t.Fatalf("unexpected angle search: %+v", opts.AngleSearch)
	}
}

func TestLoadAssembleOptionsDefaultRegionSize(t *testing.T) {
	path := writeParams(t, `{
		input_mosaic: "in.mosaic",
		output_png: "out.png",
		tile_path: "/tiles",
	}`)
	opts, err := config.LoadAssembleOptions(path)
	if err != nil {
		t.Fatalf("LoadAssembleOptions: %v", err)
	}
	if opts.RegionSize != 2048 {
		t.Fatalf("RegionSize = %d, want default 2048", opts.RegionSize)
	}
}
