package service

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"github.com/google/cel-go/common/types/ref"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

// CELPodcastFilter evaluates a compiled CEL expression against podcasts
// after they are loaded from the store.
type CELPodcastFilter struct {
	program cel.Program
}

func CompilePodcastFilter(raw string) (*CELPodcastFilter, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("author_id", decls.Int),
			decls.NewVar("title", decls.String),
			decls.NewVar("slug", decls.String),
			decls.NewVar("description", decls.String),
			decls.NewVar("published", decls.Bool),
			decls.NewVar("duration", decls.Int),
			decls.NewVar("categories", decls.NewListType(decls.String)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build CEL env: %w", err)
	}

	ast, issues := env.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid CEL filter: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build CEL program: %w", err)
	}

	return &CELPodcastFilter{program: program}, nil
}

func (f *CELPodcastFilter) Matches(podcast models.Podcast, categories []models.Category) (bool, error) {
	if f == nil {
		return true, nil
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}

	out, _, err := f.program.Eval(map[string]any{
		"author_id":   podcast.AuthorID,
		"title":       podcast.Title,
		"slug":        podcast.Slug,
		"description": podcast.Description,
		"published":   podcast.Published,
		"duration":    podcast.Duration,
		"categories":  names,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate CEL filter: %w", err)
	}
	return asBool(out)
}

func asBool(v ref.Val) (bool, error) {
	switch val := v.Value().(type) {
	case bool:
		return val, nil
	default:
		return false, fmt.Errorf("filter expression must return bool, got %T", val)
	}
}
