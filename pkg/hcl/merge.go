package hcl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
)

// MergeHCLFiles combines multiple HCL files into a single HCL file body.
// This mimics how Terraform loads multiple .tf files in a directory: an attribute
// may only be set once across all files, while strategy blocks accumulate.
func MergeHCLFiles(filePaths []string) (*hcl.File, error) {
	parser := hclparse.NewParser()
	var mergedContent bytes.Buffer

	for _, path := range filePaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		// each file must be valid on its own so errors point at the right file
		if _, diags := parser.ParseHCL(content, path); diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
		}

		mergedContent.Write(content)
		mergedContent.WriteString("\n")
	}

	file, diags := parser.ParseHCL(mergedContent.Bytes(), "merged.hcl")
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse merged HCL content: %s", diags.Error())
	}

	return file, nil
}

// ParseExperimentFiles parses and merges several HCL files into one experiment
func ParseExperimentFiles(filePaths []string) (*experiment.Experiment, error) {
	if len(filePaths) == 0 {
		return nil, fmt.Errorf("no HCL files given")
	}
	mergedFile, err := MergeHCLFiles(filePaths)
	if err != nil {
		return nil, err
	}
	return parseExperimentFromFile(mergedFile)
}

// ParseExperimentDirectory parses all .hcl files in a directory, in name order,
// as one experiment
func ParseExperimentDirectory(dirPath string) (*experiment.Experiment, error) {
	var hclFiles []string
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && IsHCLBasedOnExtension(info.Name()) {
			hclFiles = append(hclFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dirPath, err)
	}

	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no HCL files found in directory %s", dirPath)
	}
	sort.Strings(hclFiles)

	return ParseExperimentFiles(hclFiles)
}

// ParseExperimentPath parses a single file or a directory of files
func ParseExperimentPath(path string) (*experiment.Experiment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return ParseExperimentDirectory(path)
	}
	return ParseExperimentFiles([]string{path})
}
