package service

import (
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/kplngyi/Letter2Future/internal/envelope"
	"github.com/kplngyi/Letter2Future/internal/mail"
	"github.com/kplngyi/Letter2Future/internal/model"
)

const subject = "A letter from the past - Letter to the Future"

// Renderer turns a due letter into an outbound email. Plaintext letters are
// delivered verbatim; encrypted letters become a capability link carrying the
// public decryption parameters.
type Renderer struct {
	baseURL string
}

func NewRenderer(baseURL string) *Renderer {
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *Renderer) Render(letter model.Letter) mail.Email {
	if !letter.IsEncrypted {
		return r.renderPlain(letter)
	}

	env, err := envelope.Decode(letter.Content)
	if err != nil {
		// Malformed envelopes produce a fixed notice; the stored content is
		// never shipped.
		slog.Warn("encrypted letter has unreadable envelope",
			"letter_id", letter.ID,
			"error", err,
		)
		return r.renderUnreadable(letter)
	}
	return r.renderEncrypted(letter, env)
}

func (r *Renderer) renderPlain(letter model.Letter) mail.Email {
	return mail.Email{
		To:      letter.RecipientEmail,
		Subject: subject,
		Text:    letter.Content,
		HTML: fmt.Sprintf(`<div style="font-family: sans-serif; padding: 20px;">
<h2>A letter from the past</h2>
<div style="white-space: pre-wrap; line-height: 1.6;">%s</div>
<hr style="margin-top: 30px; border: none; border-top: 1px solid #eee;">
<p style="color: #666; font-size: 12px;">You wrote this letter in the past. Its time has come.</p>
</div>`, html.EscapeString(letter.Content)),
	}
}

func (r *Renderer) renderEncrypted(letter model.Letter, env *envelope.Envelope) mail.Email {
	link := env.CapabilityURL(r.baseURL)

	iterations := env.Encrypted.Iterations
	if iterations <= 0 {
		iterations = envelope.DefaultIterations
	}

	text := fmt.Sprintf(`This letter was encrypted in your browser before it was stored, so only you
can read it. Open the link below and enter your passphrase:

%s

If the link does not work, open %s/decrypt and fill in these values by hand:

Ciphertext: %s
IV: %s
Salt: %s
Iterations: %d

The letter was sealed with %s; the key is derived from your passphrase
using %s.`,
		link,
		r.baseURL,
		env.Encrypted.Ciphertext,
		env.Encrypted.IV,
		env.Encrypted.Salt,
		iterations,
		envelope.Algorithm,
		envelope.KDF,
	)

	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; padding: 20px;">
<h2>An encrypted letter from the past</h2>
<p>This letter was encrypted in your browser before it was stored, so only you can read it.</p>
<p><a href="%s">Open and decrypt your letter</a></p>
<p style="color: #666; font-size: 12px;">If the link does not work, open the decrypt page yourself and paste in:<br>
Ciphertext: <code>%s</code><br>
IV: <code>%s</code><br>
Salt: <code>%s</code><br>
Iterations: <code>%d</code></p>
</div>`,
		html.EscapeString(link),
		html.EscapeString(env.Encrypted.Ciphertext),
		html.EscapeString(env.Encrypted.IV),
		html.EscapeString(env.Encrypted.Salt),
		iterations,
	)

	return mail.Email{
		To:      letter.RecipientEmail,
		Subject: subject,
		Text:    text,
		HTML:    htmlBody,
	}
}

func (r *Renderer) renderUnreadable(letter model.Letter) mail.Email {
	text := fmt.Sprintf(`A letter scheduled for you could not be prepared for delivery: its stored
encrypted envelope is unreadable. Nothing was lost on your side, but the
operator of this service needs to look into it. Reference: letter %d.`, letter.ID)

	return mail.Email{
		To:      letter.RecipientEmail,
		Subject: subject,
		Text:    text,
	}
}
