package command

import (
	"fmt"
	"html"
	"strings"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/mailer"
	"tg_roster_bot/internal/telegram"
)

// Fixed replies, unescaped.
const (
	FaultText             = "Qualcosa è andato storto, riprova più tardi."
	NothingToSearchText   = "Non mi hai dato niente da cercare!"
	NoMatchesText         = "Nessun iscritto con i criteri di ricerca specificati"
	SelfDemotionText      = "Non puoi toglierti i poteri da solo!"
	SelfDeactivationText  = "Non puoi disattivarti da solo!"
	UnresolvedCallerText  = "Qualcosa non ha funzionato..."
	MissingCodeText       = "Non mi hai dato il codice di autorizzazione. Richiedilo ai tuoi capigruppo!"
	InvalidCodeText       = "Il codice di autorizzazione inviato non è valido!"
	MissingRecipientText  = "Non mi hai detto a chi devo mandare il codice!"
	RecipientNotFoundText = "Non ti ho trovato nell'elenco, chiedi aiuto ai capigruppo!"
	MailSentText          = "Email inviata!"
	MailDisabledText      = "L'invio delle email non è configurato."
	ImportDisabledText    = "L'aggiornamento della lista non è configurato."
	ImportStartedText     = "Sto leggendo il file excel remoto"
	NoEnabledText         = "Nessun iscritto abilitato"

	separator = "--------------------------------------"
	dateFmt   = "02/01/2006"
	stampFmt  = "02/01/2006 15:04:05"
)

var helpLines = []string{
	"/info - Ottiene le info di un socio del gruppo, si può cercare per cognome, nome, codice socio, codice fiscale o unità [L/C, E/G, R/S, Adulti]. Usa /info tutti per l'elenco completo, aggiungi tutti in fondo per includere gli iscritti non attivi",
	"/codicesocio - Ottiene il codice socio di un socio del gruppo, si può cercare per cognome, nome, codice socio, codice fiscale o unità [L/C, E/G, R/S, Adulti]",
	"/generacodice - Genera il codice di autorizzazione per potersi abilitare all'uso del bot. Solo per amministratori",
	"/inviacodice - Invia il codice di autorizzazione all'indirizzo email registrato, si può cercare per codice socio o codice fiscale",
	"/registrami - Registra l'account telegram al bot. Richiede codice di autorizzazione",
	"/aggiungiadmin - Aggiunge un amministratore del bot. Solo per amministratori",
	"/aggiungicapo - Aggiunge un capo del gruppo. Solo per amministratori",
	"/rimuoviadmin - Rimuove un amministratore del bot. Solo per amministratori",
	"/rimuovicapo - Rimuove un capo del gruppo. Solo per amministratori",
	"/attiva - Riattiva un iscritto. Solo per amministratori",
	"/disattiva - Disattiva un iscritto. Solo per amministratori",
	"/abilitati - Elenca gli iscritti registrati al bot. Solo per amministratori",
	"/aggiorna - Aggiorna la lista soci dal file excel remoto. Solo per amministratori",
	"/log - Mostra gli ultimi comandi ricevuti, di default negli ultimi 7 giorni. Solo per super amministratori",
	"/puliscilog - Cancella i log più vecchi di 7 giorni, o del numero di giorni indicato. Solo per super amministratori",
	"/stato - Mostra lo stato del bot. Solo per super amministratori",
	"/help - Mostra questa guida ai comandi",
}

// HelpText is the command reference, unescaped.
func HelpText() string {
	return strings.Join(helpLines, "\n")
}

// unknownCommandText echoes raw verbatim between escaped fragments.
func unknownCommandText(raw string) string {
	return telegram.Escape(`Mi dispiace, ma non so cosa significa "`) + raw +
		telegram.Escape(`", la mia intelligenza è limitata. Usa /help per vedere cosa so fare!`)
}

func line(label, value string) string {
	return telegram.Bold(label) + " " + value + "\n"
}

func yesNo(v bool) string {
	if v {
		return "Si"
	}
	return "No"
}

func dateOrPlaceholder(m domain.Member) string {
	if m.BirthDate.IsZero() {
		return telegram.Placeholder
	}
	return telegram.Escape(m.BirthDate.Format(dateFmt))
}

// memberCard renders one /info result. Admin fields are appended when
// elevated is true.
func memberCard(m domain.Member, elevated bool) string {
	var b strings.Builder

	b.WriteString(line("Codice Socio:", telegram.Value(m.MemberCode)))
	b.WriteString(line("Codice Fiscale:", telegram.Value(m.FiscalCode)))
	b.WriteString(line("Nome:", telegram.Value(m.FullName())))
	b.WriteString(line("Sesso:", telegram.Value(string(m.Sex))))
	b.WriteString(line("Data e luogo di nascita:", dateOrPlaceholder(m)+" \\- "+telegram.Value(m.BirthPlace)))

	residence := fmt.Sprintf("%s %s, %s %s (%s)", m.Address, m.StreetNumber, m.PostalCode, m.City, m.Province)
	b.WriteString(line("Residenza:", telegram.Value(strings.TrimSpace(residence))))

	privacy := fmt.Sprintf("_2\\.a_ %s \\- _2\\.b_ %s \\- _Immagini_ %s",
		yesNo(m.PrivacyConsentA), yesNo(m.PrivacyConsentB), yesNo(m.ImageConsent))
	b.WriteString(line("Privacy:", privacy))

	b.WriteString(line("Branca:", telegram.Value(m.Branch.DisplayName())))
	b.WriteString(line("Cellulare:", telegram.Value(m.Phone)))
	b.WriteString(line("Email:", telegram.Value(m.Email)))
	b.WriteString(line("Fo.Ca.:", telegram.Value(m.TrainingLevel)))

	if elevated {
		b.WriteString(line("Ruolo:", telegram.Value(m.Role.DisplayName())))
		b.WriteString(line("Telegram:", handleText(m)))
		b.WriteString(line("AuthCode:", telegram.Value(m.AuthCode)))
		b.WriteString(line("Attivo:", yesNo(m.Active)))
	}

	b.WriteString(telegram.Escape(separator))
	return b.String()
}

// handleText renders the bound Telegram account. The @ prefix is kept for
// real usernames only.
func handleText(m domain.Member) string {
	switch m.TelegramHandle {
	case "":
		return telegram.Placeholder
	case telegram.PlaceholderHandle(m.TelegramID):
		return telegram.Escape(m.TelegramHandle)
	}
	return telegram.Escape("@" + m.TelegramHandle)
}

// memberCodeList renders the aggregated /codicesocio reply.
func memberCodeList(members []domain.Member) string {
	var b strings.Builder
	for _, m := range members {
		b.WriteString(line("Codice Socio:", telegram.Value(m.MemberCode)))
		b.WriteString(line("Nome:", telegram.Value(m.FullName())))
		b.WriteString(line("Branca:", telegram.Value(m.Branch.DisplayName())))
		b.WriteString(telegram.Escape(separator) + "\n")
	}
	return b.String()
}

func countSummary(label string, n int) string {
	return telegram.Escape(label+" ") + "*" + telegram.Escape(fmt.Sprint(n)) + "*"
}

func auditLine(e domain.AuditEntry) string {
	return telegram.Bold(e.LoggedAt.UTC().Format(stampFmt)) + " " +
		telegram.Escape(e.Username+": "+e.Command)
}

// authCodeEmail composes the code-by-email message in the member's
// grammatical gender.
func authCodeEmail(m domain.Member, orgName, botUsername string) mailer.Message {
	ending := m.Gendered("o", "a")
	name := m.FullName()

	link := "telegram"
	htmlLink := "telegram"
	if botUsername != "" {
		url := "https://t.me/" + botUsername
		link = "telegram t.me/" + botUsername
		htmlLink = fmt.Sprintf(`telegram <a href="%s">%s</a>`, url, url)
	}

	text := fmt.Sprintf("Ciao %s,\n"+
		"Per accedere al bot devi essere autenticat%s.\n"+
		"Il tuo codice autorizzazione è %s\n"+
		"Accedi al bot con %s e digita il comando /registrami %s.\n"+
		"Fraternamente,\n"+
		"Il tuo amico bot di quartiere",
		name, ending, m.AuthCode, link, m.AuthCode)

	body := fmt.Sprintf("<p>Ciao %s,</p>"+
		"<p>Per accedere al bot devi essere autenticat%s.<br/>"+
		"Il tuo codice autorizzazione &egrave; <strong>%s</strong></p>"+
		"<p>Accedi al bot con %s e digita il comando /autorizzami %s.</p>"+
		"<p>Fraternamente,<br/>"+
		"Il tuo amico bot di quartiere</p>",
		html.EscapeString(name), ending, html.EscapeString(m.AuthCode), htmlLink, html.EscapeString(m.AuthCode))

	return mailer.Message{
		Subject: "Accesso al bot telegram della " + orgName,
		Text:    text,
		HTML:    body,
		To:      mailer.SplitRecipients(m.Email),
	}
}
