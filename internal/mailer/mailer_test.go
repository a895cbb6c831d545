package mailer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/wneessen/go-mail"

	"tg_roster_bot/internal/config"
)

type fakeClient struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeClient) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func stubClient(t *testing.T, client *fakeClient) *config.MailConfig {
	t.Helper()

	orig := newMailClient
	t.Cleanup(func() { newMailClient = orig })

	var got config.MailConfig
	newMailClient = func(cfg config.MailConfig) (mailClient, error) {
		got = cfg
		return client, nil
	}
	return &got
}

func TestSendDeliversMessage(t *testing.T) {
	client := &fakeClient{}
	gotCfg := stubClient(t, client)

	hookLogger, hook := logtest.NewNullLogger()
	cfg := config.MailConfig{Host: "smtp.example.org", Port: 587, From: "bot@example.org"}
	m, err := New(cfg, logrus.NewEntry(hookLogger))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if gotCfg.Host != "smtp.example.org" {
		t.Fatalf("expected client to be built from config, got %+v", *gotCfg)
	}

	err = m.Send(context.Background(), Message{
		Subject: "Accesso al bot",
		Text:    "ciao",
		HTML:    "<p>ciao</p>",
		To:      []string{"maria@example.org", " ", "luigi@example.org"},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(client.sent))
	}

	var recipients []string
	for _, addr := range client.sent[0].GetTo() {
		recipients = append(recipients, addr.Address)
	}
	if !reflect.DeepEqual(recipients, []string{"maria@example.org", "luigi@example.org"}) {
		t.Fatalf("unexpected recipients %v", recipients)
	}

	if hook.LastEntry() == nil || hook.LastEntry().Data["event"] != "mail_sent" {
		t.Fatalf("expected mail_sent log")
	}
}

func TestSendReturnsDeliveryError(t *testing.T) {
	expected := errors.New("relay denied")
	stubClient(t, &fakeClient{err: expected})

	m, err := New(config.MailConfig{Host: "smtp", From: "bot@example.org"}, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = m.Send(context.Background(), Message{Subject: "s", Text: "t", To: []string{"a@example.org"}})
	if !errors.Is(err, expected) {
		t.Fatalf("expected wrapped delivery error, got %v", err)
	}
}

func TestBuildMessageValidatesAddresses(t *testing.T) {
	if _, err := buildMessage("bot@example.org", Message{To: []string{" "}}); err == nil {
		t.Fatalf("expected error without recipients")
	}
	if _, err := buildMessage("not an address", Message{To: []string{"a@example.org"}}); err == nil {
		t.Fatalf("expected error for invalid sender")
	}
}

func TestNewRequiresHost(t *testing.T) {
	if _, err := New(config.MailConfig{}, nil); err == nil {
		t.Fatalf("expected error without host")
	}
}

func TestSplitRecipients(t *testing.T) {
	got := SplitRecipients("maria@example.org; ;luigi@example.org;")
	want := []string{"maria@example.org", "luigi@example.org"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitRecipients = %v, want %v", got, want)
	}
	if len(SplitRecipients("")) != 0 {
		t.Fatalf("expected no recipients for empty field")
	}
}

func TestTLSPolicy(t *testing.T) {
	tests := map[string]mail.TLSPolicy{
		"":              mail.TLSMandatory,
		"mandatory":     mail.TLSMandatory,
		"Opportunistic": mail.TLSOpportunistic,
		"none":          mail.NoTLS,
	}
	for in, want := range tests {
		if got := tlsPolicy(in); got != want {
			t.Fatalf("tlsPolicy(%q) = %v, want %v", in, got, want)
		}
	}
}
