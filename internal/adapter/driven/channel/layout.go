package channel

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// emailLayout wraps a rendered body in a minimal HTML document. The body is
// trusted output from the template renderer and is written unescaped.
func emailLayout(subject, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(subject)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</title></head><body>`); err != nil {
			return err
		}
		if err := templ.Raw(body).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}
