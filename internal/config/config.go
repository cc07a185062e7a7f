// Package config loads the JSON5 parameter files consumed by the three
// CLI tools. It follows the teacher's own parameter-file pattern exactly:
// read the file, json5.Unmarshal into a map[string]interface{}, then walk
// named leaves with a "collect a message, return (msg, ok)" validator
// (jsonProcessing.go's validateJsonFileAndFillEvent) rather than
// unmarshalling straight into a struct, so a field of the wrong JSON type
// produces a specific, named error instead of a generic decode failure.
package config

import (
	"fmt"
	"os"

	json "github.com/KevinWang15/go-json5"
)

// RegisterOptions configures cmd/register: mosaic arrangement (C5 + C6).
type RegisterOptions struct {
	InputMosaic        string
	OutputMosaic       string
	TilePath           string
	MinOverlapFraction float64
	WorkingScale       float64
	RelaxAlpha         float64
	RelaxMaxIter       int
	RelaxCutoff        float64
}

// SliceToSliceOptions configures cmd/slicetoslice: section-to-section
// registration (C3).
type SliceToSliceOptions struct {
	FixedPath    string
	MovingPath   string
	OutputStos   string
	MinOverlap   float64
	Scale        float64
	AngleSearch  []float64
}

// AssembleOptions configures cmd/assemble: mosaic rendering (C7).
type AssembleOptions struct {
	InputMosaic string
	OutputPNG   string
	TilePath    string
	CacheDir    string
	RegionSize  int
}

func readTable(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	var table map[string]interface{}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return table, nil
}

func getLeaf(table map[string]interface{}, path ...string) (interface{}, bool) {
	var cur interface{} = table
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LoadRegisterOptions reads and validates a cmd/register parameter file.
func LoadRegisterOptions(path string) (RegisterOptions, error) {
	table, err := readTable(path)
	if err != nil {
		return RegisterOptions{}, err
	}
	opts := RegisterOptions{MinOverlapFraction: 0.05, WorkingScale: 1.0, RelaxAlpha: 0.5, RelaxMaxIter: 10000, RelaxCutoff: 1e-3}

	msg, ok := fillRegisterOptions(table, &opts)
	if !ok {
		return RegisterOptions{}, fmt.Errorf("config: %s", msg)
	}
	return opts, nil
}

func fillRegisterOptions(table map[string]interface{}, opts *RegisterOptions) (string, bool) {
	msg := "no problem found in register parameter file"

	v, ok := getLeaf(table, "input_mosaic")
	if !ok {
		return "input_mosaic: not found", false
	}
	opts.InputMosaic, ok = v.(string)
	if !ok {
		return "input_mosaic: is not a string", false
	}

	v, ok = getLeaf(table, "output_mosaic")
	if !ok {
		return "output_mosaic: not found", false
	}
	opts.OutputMosaic, ok = v.(string)
	if !ok {
		return "output_mosaic: is not a string", false
	}

	v, ok = getLeaf(table, "tile_path")
	if !ok {
		return "tile_path: not found", false
	}
	opts.TilePath, ok = v.(string)
	if !ok {
		return "tile_path: is not a string", false
	}

	if v, ok := getLeaf(table, "min_overlap_fraction"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "min_overlap_fraction: is not a float64", false
		}
		opts.MinOverlapFraction = f
	}
	if v, ok := getLeaf(table, "working_scale"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "working_scale: is not a float64", false
		}
		opts.WorkingScale = f
	}
	if v, ok := getLeaf(table, "relax_alpha"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "relax_alpha: is not a float64", false
		}
		opts.RelaxAlpha = f
	}
	if v, ok := getLeaf(table, "relax_max_iter"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "relax_max_iter: is not a float64", false
		}
		opts.RelaxMaxIter = int(f)
	}
	if v, ok := getLeaf(table, "relax_cutoff"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "relax_cutoff: is not a float64", false
		}
		opts.RelaxCutoff = f
	}
	return msg, true
}

// LoadSliceToSliceOptions reads and validates a cmd/slicetoslice parameter file.
func LoadSliceToSliceOptions(path string) (SliceToSliceOptions, error) {
	table, err := readTable(path)
	if err != nil {
		return SliceToSliceOptions{}, err
	}
	opts := SliceToSliceOptions{MinOverlap: 0.75, Scale: 1.0}

	msg, ok := fillSliceToSliceOptions(table, &opts)
	if !ok {
		return SliceToSliceOptions{}, fmt.Errorf("config: %s", msg)
	}
	return opts, nil
}

func fillSliceToSliceOptions(table map[string]interface{}, opts *SliceToSliceOptions) (string, bool) {
	msg := "no problem found in slicetoslice parameter file"

	v, ok := getLeaf(table, "fixed_path")
	if !ok {
		return "fixed_path: not found", false
	}
	opts.FixedPath, ok = v.(string)
	if !ok {
		return "fixed_path: is not a string", false
	}

	v, ok = getLeaf(table, "moving_path")
	if !ok {
		return "moving_path: not found", false
	}
	opts.MovingPath, ok = v.(string)
	if !ok {
		return "moving_path: is not a string", false
	}

	v, ok = getLeaf(table, "output_stos")
	if !ok {
		return "output_stos: not found", false
	}
	opts.OutputStos, ok = v.(string)
	if !ok {
		return "output_stos: is not a string", false
	}

	if v, ok := getLeaf(table, "min_overlap"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "min_overlap: is not a float64", false
		}
		opts.MinOverlap = f
	}
	if v, ok := getLeaf(table, "scale"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "scale: is not a float64", false
		}
		opts.Scale = f
	}
	if v, ok := getLeaf(table, "angle_search"); ok {
		arr, isArr := v.([]interface{})
		if !isArr {
			return "angle_search: is not an array", false
		}
		angles := make([]float64, len(arr))
		for i, item := range arr {
			f, isFloat := item.(float64)
			if !isFloat {
				return "angle_search: contains a non-float64 element", false
			}
			angles[i] = f
		}
		opts.AngleSearch = angles
	}
	return msg, true
}

// LoadAssembleOptions reads and validates a cmd/assemble parameter file.
func LoadAssembleOptions(path string) (AssembleOptions, error) {
	table, err := readTable(path)
	if err != nil {
		return AssembleOptions{}, err
	}
	opts := AssembleOptions{RegionSize: 2048}

	msg, ok := fillAssembleOptions(table, &opts)
	if !ok {
		return AssembleOptions{}, fmt.Errorf("config: %s", msg)
	}
	return opts, nil
}

func fillAssembleOptions(table map[string]interface{}, opts *AssembleOptions) (string, bool) {
	msg := "no problem found in assemble parameter file"

	v, ok := getLeaf(table, "input_mosaic")
	if !ok {
		return "input_mosaic: not found", false
	}
	opts.InputMosaic, ok = v.(string)
	if !ok {
		return "input_mosaic: is not a string", false
	}

	v, ok = getLeaf(table, "output_png")
	if !ok {
		return "output_png: not found", false
	}
	opts.OutputPNG, ok = v.(string)
	if !ok {
		return "output_png: is not a string", false
	}

	v, ok = getLeaf(table, "tile_path")
	if !ok {
		return "tile_path: not found", false
	}
	opts.TilePath, ok = v.(string)
	if !ok {
		return "tile_path: is not a string", false
	}

	if v, ok := getLeaf(table, "cache_dir"); ok {
		opts.CacheDir, ok = v.(string)
		if !ok {
			return "cache_dir: is not a string", false
		}
	}
	if v, ok := getLeaf(table, "region_size"); ok {
		f, isFloat := v.(float64)
		if !isFloat {
			return "region_size: is not a float64", false
		}
		opts.RegionSize = int(f)
	}
	return msg, true
}
