package email

import (
	"html"
	"strings"
)

// fallbackHTML creates a simple HTML email when the template is missing or fails.
func fallbackHTML(subject string, ctx TemplateContext) string {
	greeting := "Olá"
	if name, ok := ctx["recipientName"].(string); ok && name != "" {
		greeting = "Olá " + html.EscapeString(name)
	}

	message, _ := ctx["message"].(string)
	ctaURL, _ := ctx["ctaUrl"].(string)
	ctaText, _ := ctx["ctaText"].(string)
	if ctaText == "" {
		ctaText = "Acessar"
	}

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>` + html.EscapeString(subject) + `</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #1f2937; margin: 0; padding: 20px; background-color: #fdf2f8;">
  <div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 12px; padding: 32px;">
    <p style="font-size: 16px;">` + greeting + `,</p>
    <p>` + html.EscapeString(message) + `</p>`)

	if ctaURL != "" {
		b.WriteString(`
    <p style="margin-bottom: 24px;">
      <a href="` + html.EscapeString(ctaURL) + `" style="display: inline-block; background-color: #be185d; color: #ffffff; padding: 12px 24px; border-radius: 8px; text-decoration: none;">` + html.EscapeString(ctaText) + `</a>
    </p>`)
	}

	b.WriteString(`
    <hr style="border: none; border-top: 1px solid #f3e8ff; margin: 32px 0 16px;">
    <p style="font-size: 12px; color: #6b7280;">Este email foi enviado pelo vaguinhas.`)
	if u, ok := ctx["unsubscribeUrl"].(string); ok && u != "" {
		b.WriteString(` <a href="` + html.EscapeString(u) + `">Cancelar inscrição</a>`)
	}
	b.WriteString(`</p>
  </div>
</body>
</html>`)

	return b.String()
}

// fallbackText creates a plain text email when the template is missing or fails.
func fallbackText(ctx TemplateContext) string {
	greeting := "Olá"
	if name, ok := ctx["recipientName"].(string); ok && name != "" {
		greeting = "Olá " + name
	}

	text := greeting + ","
	if message, ok := ctx["message"].(string); ok && message != "" {
		text += "\n\n" + message
	}
	if u, ok := ctx["ctaUrl"].(string); ok && u != "" {
		text += "\n\nLink: " + u
	}
	text += "\n\n---\nEste email foi enviado pelo vaguinhas."
	if u, ok := ctx["unsubscribeUrl"].(string); ok && u != "" {
		text += "\nCancelar inscrição: " + u
	}
	return text
}
