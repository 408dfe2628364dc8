package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/replyflow/internal/presentation/graph"
	"github.com/aretw0/replyflow/internal/validator"
	"github.com/aretw0/replyflow/pkg/adapters/file"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
)

// ValidateFile loads a template version and runs the publication checks on it.
func ValidateFile(path string) (*domain.TemplateVersion, error) {
	v, err := file.LoadVersionFile(path)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateVersion(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Graph writes the Mermaid flowchart of the version in path. When sessionID
// is set, the path that session took is highlighted.
func Graph(ctx context.Context, path string, store ports.SessionStore, sessionID string, w io.Writer) error {
	v, err := file.LoadVersionFile(path)
	if err != nil {
		return err
	}
	var overlay *graph.Overlay
	if sessionID != "" {
		s, err := store.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session %q: %w", sessionID, err)
		}
		if s.TemplateVersionID != v.ID {
			return domain.NewInputError("session", fmt.Sprintf("session %s runs version %s, not %s", s.ID, s.TemplateVersionID, v.ID))
		}
		overlay = graph.SessionOverlay(s)
	}
	_, err = fmt.Fprint(w, graph.GenerateMermaid(v, overlay))
	return err
}
