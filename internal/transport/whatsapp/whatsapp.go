// Package whatsapp adapts go.mau.fi/whatsmeow to the transport.Session
// contract. Credentials are persisted in a sqlite store so pairing survives
// restarts; the QR pairing challenge is rendered to the terminal.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	// sqlite driver for the whatsmeow credential store.
	_ "modernc.org/sqlite"

	"blastbot/internal/transport"
	logx "blastbot/pkg/logx"
)

const DefaultStorePath = "./blastbot.session.db"

type Config struct {
	// StorePath is the sqlite file holding pairing credentials.
	StorePath string
}

// Dialer produces ready sessions. Use Dial as a transport.DialFunc.
type Dialer struct {
	cfg     Config
	log     logx.Logger
	onEvent transport.EventFunc
}

func NewDialer(cfg Config, onEvent transport.EventFunc, log logx.Logger) *Dialer {
	if strings.TrimSpace(cfg.StorePath) == "" {
		cfg.StorePath = DefaultStorePath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dialer{cfg: cfg, log: log, onEvent: onEvent}
}

// Dial connects, drives pairing if no stored credentials exist, and returns
// once the session is ready. ctx bounds the whole wait, QR scanning included.
func (d *Dialer) Dial(ctx context.Context) (transport.Session, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", d.cfg.StorePath)
	container, err := sqlstore.New("sqlite", dsn, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLog.Noop)
	s := &session{cli: cli, log: d.log}

	ready := make(chan struct{}, 1)
	cli.AddEventHandler(func(evt interface{}) {
		s.forwardEvent(evt, d.onEvent, ready)
	})

	if cli.Store.ID == nil {
		if err := d.pair(ctx, cli); err != nil {
			return nil, err
		}
	} else if err := cli.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	select {
	case <-ready:
	case <-ctx.Done():
		cli.Disconnect()
		return nil, ctx.Err()
	}
	return s, nil
}

// pair runs the QR handshake for a device with no stored credentials.
func (d *Dialer) pair(ctx context.Context, cli *whatsmeow.Client) error {
	qrChan, err := cli.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			cli.Disconnect()
			return ctx.Err()
		case item, ok := <-qrChan:
			if !ok {
				return errors.New("pairing channel closed")
			}
			switch item.Event {
			case "code":
				d.emit(transport.Event{Kind: transport.EventQR, Code: item.Code})
				d.log.Info("scan the QR code to authenticate")
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			case "success":
				d.emit(transport.Event{Kind: transport.EventAuthenticated})
				return nil
			default:
				cli.Disconnect()
				if item.Error != nil {
					return fmt.Errorf("pairing failed: %w", item.Error)
				}
				return fmt.Errorf("pairing failed: %s", item.Event)
			}
		}
	}
}

func (d *Dialer) emit(ev transport.Event) {
	if d.onEvent != nil {
		d.onEvent(ev)
	}
}

type session struct {
	cli *whatsmeow.Client
	log logx.Logger
}

func (s *session) forwardEvent(evt interface{}, onEvent transport.EventFunc, ready chan<- struct{}) {
	var out transport.Event
	switch evt.(type) {
	case *events.Connected:
		out = transport.Event{Kind: transport.EventReady}
		select {
		case ready <- struct{}{}:
		default:
		}
	case *events.LoggedOut:
		out = transport.Event{Kind: transport.EventAuthFailure, Err: errors.New("logged out by server")}
	case *events.Disconnected:
		out = transport.Event{Kind: transport.EventDisconnected}
	default:
		return
	}
	s.log.Debug("transport event", logx.String("kind", string(out.Kind)))
	if onEvent != nil {
		onEvent(out)
	}
}

// IsRegistered asks the server whether the address has an account.
func (s *session) IsRegistered(ctx context.Context, addr string) (bool, error) {
	user, _, found := strings.Cut(addr, "@")
	if !found || user == "" {
		return false, fmt.Errorf("malformed address %q", addr)
	}
	resp, err := s.cli.IsOnWhatsApp([]string{"+" + user})
	if err != nil {
		return false, fmt.Errorf("recipient check: %w", err)
	}
	if len(resp) == 0 {
		return false, nil
	}
	return resp[0].IsIn, nil
}

func (s *session) SendText(ctx context.Context, addr, text string) error {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return fmt.Errorf("parse address %q: %w", addr, err)
	}
	_, err = s.cli.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (s *session) Close(ctx context.Context) error {
	s.cli.Disconnect()
	return nil
}
