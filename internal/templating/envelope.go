package templating

import (
	"bytes"
	"html/template"
	"strings"

	"golang.org/x/net/html"
)

// Brand configures the fixed email envelope
type Brand struct {
	Name         string
	LogoURL      string
	Color        string
	Notice       string
	Copyright    string
	DefaultTitle string
}

// DefaultBrand is used when no branding is configured
var DefaultBrand = Brand{
	Name:         "OWO",
	LogoURL:      "https://owo-public-files.s3.amazonaws.com/mails/logo-mails-light.png",
	Color:        "#8B5A9B",
	Notice:       "Este buzón de correo es solo para envío de información, por favor no lo respondas porque no podrá ser recibido y atendido.",
	Copyright:    "© 2025 OWO by Owotech. Todos los derechos reservados.",
	DefaultTitle: "Mensaje de OWO",
}

const envelopeMarker = "data-envelope"

var envelopeTmpl = template.Must(template.New("envelope").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="color-scheme" content="light only">
    <title>{{.Title}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f5f5f5;">
    <table width="100%" cellpadding="0" cellspacing="0" border="0" style="background-color: #f5f5f5; padding: 20px 0;">
        <tr>
            <td align="center">
                <table width="600" cellpadding="0" cellspacing="0" border="0" style="background-color: #ffffff; border-radius: 8px; overflow: hidden;">
                    <tr>
                        <td data-envelope="header" bgcolor="{{.Brand.Color}}" style="background-color: {{.Brand.Color}}; padding: 5px; text-align: center;">
                            <img src="{{.Brand.LogoURL}}" alt="{{.Brand.Name}}" width="200" style="max-width: 200px; height: auto; display: block; margin: 0 auto;" />
                        </td>
                    </tr>
                    <tr>
                        <td bgcolor="#ffffff" style="background-color: #ffffff; padding: 40px 30px; color: #333333; line-height: 1.6;">
                            <div data-envelope="content" style="color: #333333;">{{.Body}}</div>
                        </td>
                    </tr>
                    <tr>
                        <td data-envelope="footer" bgcolor="#f8f8f8" style="background-color: #f8f8f8; padding: 30px; text-align: center; border-top: 1px solid #e0e0e0;">
                            <p style="margin: 0 0 10px 0; font-size: 14px; color: #666666;">{{.Brand.Notice}}</p>
                            <p style="margin: 10px 0 0 0; font-size: 14px; color: #666666;">Equipo <strong style="color: {{.Brand.Color}};">{{.Brand.Name}}</strong></p>
                            <p style="margin: 15px 0 0 0; font-size: 12px; color: #999999;">{{.Brand.Copyright}}</p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`))

// Envelope wraps an HTML body fragment in the branded document
func (b Brand) Envelope(body, title string) string {
	if strings.TrimSpace(title) == "" {
		title = b.DefaultTitle
	}
	var buf bytes.Buffer
	// The template is fixed and its data are plain strings, so Execute cannot fail.
	_ = envelopeTmpl.Execute(&buf, struct {
		Title string
		Brand Brand
		Body  template.HTML
	}{title, b, template.HTML(body)})
	return buf.String()
}

// EnvelopeBody extracts the body fragment of a previously generated envelope.
// Documents produced by Envelope are located by their content attribute;
// older documents by the "<!-- Content -->" comment that precedes the
// content row.
func EnvelopeBody(doc string) (string, bool) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", false
	}
	if n := findMarked(root, "content"); n != nil {
		return innerHTML(n), true
	}
	if n := findAfterComment(root, "Content"); n != nil {
		return innerHTML(n), true
	}
	return "", false
}

func findMarked(n *html.Node, value string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == envelopeMarker && a.Val == value {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findMarked(c, value); found != nil {
			return found
		}
	}
	return nil
}

// findAfterComment returns the first <td> that follows a comment whose text is
// label, descending into a lone <div> wrapper.
func findAfterComment(n *html.Node, label string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.CommentNode && strings.TrimSpace(c.Data) == label {
			for s := c.NextSibling; s != nil; s = s.NextSibling {
				if td := firstElement(s, "td"); td != nil {
					if only := onlyElementChild(td); only != nil && only.Data == "div" {
						return only
					}
					return td
				}
			}
			return nil
		}
		if found := findAfterComment(c, label); found != nil {
			return found
		}
	}
	return nil
}

func firstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func onlyElementChild(n *html.Node) *html.Node {
	var only *html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if only != nil {
				return nil
			}
			only = c
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return nil
			}
		}
	}
	return only
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return strings.TrimSpace(buf.String())
}
