// Command dextop-bot connects to a dextop server as a regular client. It
// visits a dextop, optionally says something, and logs every event it
// receives until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dextop-world/dextop/internal/crypto"
	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/pkg/client"
	"github.com/dextop-world/dextop/pkg/wire"
)

type options struct {
	url       string
	token     string
	secret    string
	userID    string
	username  string
	visit     string
	say       string
	heartbeat time.Duration
	logLevel  string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	flagSet := pflag.NewFlagSet("dextop-bot", pflag.ContinueOnError)
	flagSet.StringVar(&o.url, "url", "http://localhost:3005", "server URL")
	flagSet.StringVar(&o.token, "token", "", "JWT to authenticate with")
	flagSet.StringVar(&o.secret, "secret", "", "master secret used to mint a token when --token is empty")
	flagSet.StringVar(&o.userID, "user", "", "user id for a minted token")
	flagSet.StringVar(&o.username, "name", "", "username for a minted token (defaults to --user)")
	flagSet.StringVar(&o.visit, "visit", "", "user id of a dextop to visit after joining home")
	flagSet.StringVar(&o.say, "say", "", "chat message to send once joined")
	flagSet.DurationVar(&o.heartbeat, "heartbeat", client.DefaultHeartbeatInterval, "heartbeat interval")
	flagSet.StringVar(&o.logLevel, "log-level", "info", "log level")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}

	if o.token == "" {
		if o.secret == "" || o.userID == "" {
			return options{}, errors.New("either --token or both --secret and --user are required")
		}
		if o.username == "" {
			o.username = o.userID
		}
	}
	return o, nil
}

func (o options) authToken() (string, error) {
	if o.token != "" {
		return o.token, nil
	}
	m, err := crypto.NewJWTManager(o.secret)
	if err != nil {
		return "", err
	}
	return m.CreateToken(o.userID, o.username, time.Hour)
}

func run(args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	token, err := o.authToken()
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	c, err := client.New(client.Options{
		URL:               o.url,
		Token:             token,
		HeartbeatInterval: o.heartbeat,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}

	b := &bot{client: c, opts: o}
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[bot] shutting down")
			return nil
		case ev := <-c.Events():
			if err := b.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// bot reacts to client events. It visits once and speaks once per join.
type bot struct {
	client  *client.Client
	opts    options
	visited bool
}

func (b *bot) handle(ctx context.Context, ev client.Event) error {
	switch ev.Name {
	case client.EventStatus:
		if ev.Err != nil {
			return ev.Err
		}
		logger.Infof("[bot] status %s (attempt %d)", ev.Status.Phase, ev.Status.Attempt)

	case wire.EventDextopJoined, wire.EventRoomJoined:
		st := b.client.Status()
		logger.Infof("[bot] joined %s as %s", st.Location.Key(), st.Identity.PlayerID)
		if b.opts.visit != "" && !b.visited && st.IsOwner {
			b.visited = true
			if err := b.client.JoinDextop(ctx, b.opts.visit); err != nil {
				logger.Warnf("[bot] visit %s failed: %v", b.opts.visit, err)
			}
			return nil
		}
		if b.opts.say != "" {
			if err := b.client.Say(ctx, b.opts.say); err != nil {
				logger.Warnf("[bot] say failed: %v", err)
			}
		}

	case wire.EventDextopMessage, wire.EventLocalMessage, wire.EventPrivateMessage:
		var m wire.Message
		if err := ev.Decode(&m); err == nil {
			logger.Infof("[bot] %s <%s> %s", ev.Name, m.SenderID, m.Content)
		}

	default:
		logger.Debugf("[bot] %s %s", ev.Name, string(ev.Data))
	}
	return nil
}
