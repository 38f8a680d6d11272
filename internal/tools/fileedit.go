package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/orchestrator"
)

// EditFile replaces old_string with new_string in file_path: every
// occurrence when replace_all is set, exactly one occurrence otherwise.
// An ambiguous match (>=2 occurrences with replace_all=false) fails
// without writing (spec §6, §8 boundary behaviours).
func EditFile(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	path, ok := stringParam(req.Params, "file_path")
	if !ok || path == "" {
		return nil, errors.ToolError("edit_file requires a non-empty \"file_path\"", nil)
	}
	oldString, _ := stringParam(req.Params, "old_string")
	newString, _ := stringParam(req.Params, "new_string")
	replaceAll := optionalBool(req.Params, "replace_all")

	original, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ToolError("read file "+path, err)
	}

	updated, err := applyEdit(string(original), editOperation{oldString, newString, replaceAll})
	if err != nil {
		return nil, errors.ToolError(err.Error(), nil)
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return nil, errors.ToolError("write file "+path, err)
	}

	return map[string]any{"diff": unifiedDiff(string(original), updated, path)}, nil
}

// editOperation is one old_string -> new_string substitution.
type editOperation struct {
	oldString  string
	newString  string
	replaceAll bool
}

// applyEdit mirrors the donor's apply_edit: it requires old_string to
// appear, and requires either replace_all or exactly one occurrence.
func applyEdit(content string, edit editOperation) (string, error) {
	count := strings.Count(content, edit.oldString)
	if count == 0 {
		return "", fmt.Errorf("string %q not found", edit.oldString)
	}
	if !edit.replaceAll && count > 1 {
		return "", fmt.Errorf("string %q found %d times; use replace_all=true or make the string more unique", edit.oldString, count)
	}

	if edit.replaceAll {
		return strings.ReplaceAll(content, edit.oldString, edit.newString), nil
	}
	return strings.Replace(content, edit.oldString, edit.newString, 1), nil
}

// MultiEditFileEdit is one edit in a multi_edit_file request's "edits" list.
type MultiEditFileEdit struct {
	OldString  string
	NewString  string
	ReplaceAll bool
}

// MultiEditFile applies edits sequentially, each against the output of the
// previous one; if any edit fails, the whole operation aborts with no file
// written (spec §6, §4.4's "multi_edit_file is sequential").
func MultiEditFile(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	path, ok := stringParam(req.Params, "file_path")
	if !ok || path == "" {
		return nil, errors.ToolError("multi_edit_file requires a non-empty \"file_path\"", nil)
	}

	edits, err := parseEdits(req.Params["edits"])
	if err != nil {
		return nil, errors.ToolError(err.Error(), nil)
	}

	original, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ToolError("read file "+path, err)
	}

	current := string(original)
	applied := 0
	for i, e := range edits {
		next, err := applyEdit(current, editOperation{e.OldString, e.NewString, e.ReplaceAll})
		if err != nil {
			return nil, errors.ToolError(fmt.Sprintf("edit %d failed: %s", i+1, err), nil)
		}
		current = next
		applied++
	}

	if err := os.WriteFile(path, []byte(current), 0o644); err != nil {
		return nil, errors.ToolError("write file "+path, err)
	}

	return map[string]any{
		"edits_applied": applied,
		"diff":          unifiedDiff(string(original), current, path),
	}, nil
}

// parseEdits decodes the "edits" tool parameter (a JSON array of objects
// with old_string/new_string/replace_all) into MultiEditFileEdit values.
func parseEdits(raw any) ([]MultiEditFileEdit, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("\"edits\" must be an array")
	}
	edits := make([]MultiEditFileEdit, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each edit must be an object")
		}
		old, _ := obj["old_string"].(string)
		replacement, _ := obj["new_string"].(string)
		replaceAll, _ := obj["replace_all"].(bool)
		edits = append(edits, MultiEditFileEdit{OldString: old, NewString: replacement, ReplaceAll: replaceAll})
	}
	return edits, nil
}

// unifiedDiff renders a unified-diff-shaped string for oldContent ->
// newContent, line-diffed via diffmatchpatch's line-mode (hash each line
// to a character, diff the character strings, then expand back to lines).
func unifiedDiff(oldContent, newContent, path string) string {
	dmp := diffmatchpatch.New()
	charsOld, charsNew, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	charDiffs := dmp.DiffMain(charsOld, charsNew, false)
	diffs := dmp.DiffCharsToLines(charDiffs, lineArray)

	var body strings.Builder
	oldCount, newCount := 0, 0
	for _, d := range diffs {
		lines := splitDiffLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for _, l := range lines {
				body.WriteString(" " + l + "\n")
			}
			oldCount += len(lines)
			newCount += len(lines)
		case diffmatchpatch.DiffDelete:
			for _, l := range lines {
				body.WriteString("-" + l + "\n")
			}
			oldCount += len(lines)
		case diffmatchpatch.DiffInsert:
			for _, l := range lines {
				body.WriteString("+" + l + "\n")
			}
			newCount += len(lines)
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", path, path)
	fmt.Fprintf(&out, "@@ -1,%d +1,%d @@\n", oldCount, newCount)
	out.WriteString(body.String())
	return out.String()
}

func splitDiffLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
