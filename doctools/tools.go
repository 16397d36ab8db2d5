package doctools

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/docagent/docagent"
)

const (
	defaultReadLimit  = 200
	defaultMaxMatches = 50
	defaultTopK       = 3
)

// Register adds every document tool to reg, backed by store.
func Register(reg *docagent.ToolRegistry, store docagent.DocumentStore) {
	t := &tools{store: store}
	t.registerSearchKeyword(reg)
	t.registerSemanticSearch(reg)
	t.registerReadLines(reg)
	t.registerInsertLines(reg)
	t.registerEditLines(reg)
	t.registerDeleteLines(reg)
	t.registerMetadata(reg)
}

// Names lists the registered tool names.
var Names = []string{
	"search_keyword",
	"semantic_search",
	"read_lines",
	"insert_lines",
	"edit_lines",
	"delete_lines",
	"get_document_metadata",
}

// MutatingNames lists the tools that change document content.
var MutatingNames = []string{"insert_lines", "edit_lines", "delete_lines"}

type tools struct {
	store docagent.DocumentStore
}

// target identifies the document a call addresses.
type target struct {
	documentID string
	userID     string
}

func targetOf(args map[string]any) (target, error) {
	docID, _ := docagent.GetStringArg(args, "document_id")
	if docID == "" {
		return target{}, fmt.Errorf("document_id is required")
	}
	userID, _ := docagent.GetStringArg(args, "user_id")
	return target{documentID: docID, userID: userID}, nil
}

func (t *tools) load(ctx context.Context, args map[string]any) (target, []string, error) {
	tg, err := targetOf(args)
	if err != nil {
		return tg, nil, err
	}
	content, err := t.store.ReadContent(ctx, tg.documentID, tg.userID)
	if err != nil {
		return tg, nil, fmt.Errorf("reading document: %w", err)
	}
	return tg, splitLines(content), nil
}

func (t *tools) save(ctx context.Context, tg target, lines []string) error {
	if err := t.store.WriteContent(ctx, tg.documentID, tg.userID, joinLines(lines)); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

// contentLines splits a content argument into the lines to write.
func contentLines(args map[string]any) ([]string, error) {
	content, ok := docagent.GetStringArg(args, "content")
	if !ok {
		return nil, fmt.Errorf("content is required")
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n"), nil
}

func schema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func (t *tools) registerSearchKeyword(reg *docagent.ToolRegistry) {
	reg.Register(docagent.RegisteredTool{
		Definition: docagent.ToolDefinition{
			Name:        "search_keyword",
			Description: "Find lines containing an exact phrase. Returns matching lines with their line numbers.",
			Parameters: schema([]string{"query"}, map[string]any{
				"query":          stringProp("Text to search for."),
				"case_sensitive": map[string]any{"type": "boolean", "description": "Match case exactly. Default: false."},
				"max_results":    intProp("Maximum number of matching lines. Default: 50."),
			}),
		},
		Executor: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := docagent.GetStringArg(args, "query")
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query is required")
			}
			_, lines, err := t.load(ctx, args)
			if err != nil {
				return "", err
			}
			caseSensitive, _ := docagent.GetBoolArg(args, "case_sensitive")
			limit, _ := docagent.GetIntArg(args, "max_results")
			if limit <= 0 {
				limit = defaultMaxMatches
			}

			matches := keywordMatches(lines, query, caseSensitive, limit)
			if len(matches) == 0 {
				return fmt.Sprintf("No lines contain %q.", query), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d line(s) contain %q:\n", len(matches), query)
			for _, m := range matches {
				fmt.Fprintf(&b, "%d: %s\n", m.Line, m.Text)
			}
			return strings.TrimSuffix(b.String(), "\n"), nil
		},
	})
}

func (t *tools) registerSemanticSearch(reg *docagent.ToolRegistry) {
	reg.Register(docagent.RegisteredTool{
		Definition: docagent.ToolDefinition{
			Name:        "semantic_search",
			Description: "Find the passages most related to a topic. Returns passages with their line ranges and any images they contain.",
			Parameters: schema([]string{"query"}, map[string]any{
				"query": stringProp("Topic or question to look for."),
				"top_k": intProp("Number of passages to return. Default: 3."),
			}),
		},
		Executor: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := docagent.GetStringArg(args, "query")
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query is required")
			}
			_, lines, err := t.load(ctx, args)
			if err != nil {
				return "", err
			}
			topK, _ := docagent.GetIntArg(args, "top_k")
			if topK <= 0 {
				topK = defaultTopK
			}

			ranked := rankPassages(lines, query, topK)
			if len(ranked) == 0 {
				return fmt.Sprintf("No passages relate to %q.", query), nil
			}
			var b strings.Builder
			for i, p := range ranked {
				if i > 0 {
					b.WriteString("\n\n")
				}
				fmt.Fprintf(&b, "Lines %d-%d (relevance %.2f):\n%s", p.Start, p.End, p.Score, p.Text)
				if refs := images(p.Text); len(refs) > 0 {
					b.WriteString("\nImages in this passage:")
					for _, r := range refs {
						b.WriteString("\n" + r.Markdown())
					}
				}
			}
			return b.String(), nil
		},
	})
}

func (t *tools) registerReadLines(reg *docagent.ToolRegistry) {
	reg.Register(docagent.RegisteredTool{
		Definition: docagent.ToolDefinition{
			Name:        "read_lines",
			Description: "Read a range of lines. Returns line-numbered content.",
			Parameters: schema(nil, map[string]any{
				"start_line": intProp("1-based first line. Default: 1."),
				"end_line":   intProp("1-based last line, inclusive. Default: start_line + 199."),
			}),
		},
		Executor: func(ctx context.Context, args map[string]any) (string, error) {
			_, lines, err := t.load(ctx, args)
			if err != nil {
				return "", err
			}
			if len(lines) == 0 {
				return "The document is empty.", nil
			}
			start, _ := docagent.GetIntArg(args, "start_line")
			if start <= 0 {
				start = 1
			}
			end, _ := docagent.GetIntArg(args, "end_line")
			if end <= 0 {
				end = start + defaultReadLimit - 1
			}
			if end > len(lines) {
				end = len(lines)
			}
			start, end, err = lineRange(start, end, len(lines))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Lines %d-%d of %d:\n%s", start, end, len(lines), numbered(lines, start, end)), nil
		},
	})
}

func (t *tools) registerInsertLines(reg *docagent.ToolRegistry) {
	reg.Register(docagent.RegisteredTool{
		Definition: docagent.ToolDefinition{
			Name:        "insert_lines",
			Description: "Insert new lines before the given line. Use line = total lines + 1 to append.",
			Parameters: schema([]string{"line", "content"}, map[string]any{
				"line":    intProp("1-based line the new content is inserted before."),
				"content": stringProp("Text to insert. May contain several lines."),
			}),
		},
		Executor: func(ctx context.Context, args map[string]any) (string, error) {
			added, err := contentLines(args)
			if err != nil {
				return "", err
			}
			tg, lines, err := t.load(ctx, args)
			if err != nil {
				return "", err
			}
			at, ok := docagent.GetIntArg(args, "line")
			if !ok {
				return "", fmt.Errorf("line is required")
			}
			if at < 1 || at > len(lines)+1 {
				return "", fmt.Errorf("line %d out of range (document has %d lines)", at, len(lines))
			}
			lines = insertAt(lines, at, added)
			if err := t.save(ctx, tg, lines); err != nil {
				return "", err
			}
			return fmt.Sprintf("Inserted %d line(s) at line %d. The document now has %d lines.", len(added), at, len(lines)), nil
		},
	})
}

func (t *tools) registerEditLines(reg *docagent.ToolRegistry) {
	reg.Register(docagent.RegisteredTool{
		Definition: docagent.ToolDefinition{
			Name:        "edit_lines",
			Description: "Replace a range of lines with new content.",
			Parameters: schema([]string{"start_line", "content"}, map[string]any{
				"start_line": intProp("1-based first line to replace."),
				"end_line":   intProp("1-based last line to replace, inclusive. Default: start_line."),
				"content":    stringProp("Replacement text. May contain more or fewer lines than the range."),
			}),
		},
		Executor: func(ctx context.Context, args map[string]any) (string, error) {
			replacement, err := contentLines(args)
			if err != nil {
				return "", err
			}
			tg, lines, err := t.load(ctx, args)
			if err != nil {
				return "", err
			}
			start, _ := docagent.GetIntArg(args, "start_line")
			end, _ := docagent.GetIntArg(args, "end_line")
			start, end, err = lineRange(start, end, len(lines))
			if err != nil {
				return "", err
			}
			lines = replaceRange(lines, start, end, replacement)
			if err := t.save(ctx, tg, lines); err != nil {
				return "", err
			}
			return fmt.Sprintf("Replaced lines %d-%d with %d line(s). The document now has %d lines.", start, end, len(replacement), len(lines)), nil
		},
	})
}

func (t *tools) registerDeleteLines(reg *docagent.ToolRegistry) {
	reg.Register(docagent.RegisteredTool{
		Definition: docagent.ToolDefinition{
			Name:        "delete_lines",
			Description: "Delete a range of lines.",
			Parameters: schema([]string{"start_line"}, map[string]any{
				"start_line": intProp("1-based first line to delete."),
				"end_line":   intProp("1-based last line to delete, inclusive. Default: start_line."),
			}),
		},
		Executor: func(ctx context.Context, args map[string]any) (string, error) {
			tg, lines, err := t.load(ctx, args)
			if err != nil {
				return "", err
			}
			start, _ := docagent.GetIntArg(args, "start_line")
			end, _ := docagent.GetIntArg(args, "end_line")
			start, end, err = lineRange(start, end, len(lines))
			if err != nil {
				return "", err
			}
			lines = replaceRange(lines, start, end, nil)
			if err := t.save(ctx, tg, lines); err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted lines %d-%d. The document now has %d lines.", start, end, len(lines)), nil
		},
	})
}

func (t *tools) registerMetadata(reg *docagent.ToolRegistry) {
	reg.Register(docagent.RegisteredTool{
		Definition: docagent.ToolDefinition{
			Name:        "get_document_metadata",
			Description: "Summarize the document: line, word and character counts, the heading outline with line numbers, and image references.",
			Parameters:  schema(nil, map[string]any{}),
		},
		Executor: func(ctx context.Context, args map[string]any) (string, error) {
			_, lines, err := t.load(ctx, args)
			if err != nil {
				return "", err
			}
			content := joinLines(lines)

			var b strings.Builder
			fmt.Fprintf(&b, "Lines: %d\nWords: %d\nCharacters: %d\n", len(lines), len(strings.Fields(content)), len(content))

			headings := outline(content)
			if len(headings) == 0 {
				b.WriteString("Outline: (no headings)\n")
			} else {
				b.WriteString("Outline:\n")
				for _, h := range headings {
					fmt.Fprintf(&b, "%sline %d: %s\n", strings.Repeat("  ", h.Level-1), h.Line, h.Title)
				}
			}

			if refs := images(content); len(refs) > 0 {
				fmt.Fprintf(&b, "Images: %d\n", len(refs))
				for _, r := range refs {
					b.WriteString("  " + r.Markdown() + "\n")
				}
			}
			return strings.TrimSuffix(b.String(), "\n"), nil
		},
	})
}
