package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"relaychat/internal/client"
	"relaychat/internal/config"
	"relaychat/internal/protocol"
)

var Version = "dev"

func main() {
	var cfgPaths string
	var username string
	flag.StringVar(&cfgPaths, "c", "./config.yml", "config file path (supports: a.yml,b.yml)")
	flag.StringVar(&username, "u", "", "username (overrides config)")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load(cfgPaths)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	if username == "" {
		username = cfg.Client.Username
	}
	if username == "" {
		username = "Anonymous"
	}

	wsURL := cfg.Client.ServerURL + "?username=" + username
	conn := client.NewConn(wsURL, log, cfg.WriteTimeout)

	ui := &termUI{}
	outbox := client.NewOutbox(username, conn.Send, ui, cfg.Client.AckTimeout)
	typers := client.NewRemoteTypers(username, func(users []string) {
		if len(users) == 0 {
			fmt.Println("* nobody is typing")
			return
		}
		fmt.Printf("* typing: %s\n", strings.Join(users, ", "))
	})
	typing := client.NewTyping(cfg.Client.TypingDebounce, func(start bool) {
		t := protocol.TypeStopTyping
		if start {
			t = protocol.TypeTyping
		}
		_ = conn.Send(&protocol.Frame{Type: t, Username: username})
	})

	monitor := client.NewMonitor(conn.Dial, ui, client.MonitorOptions{
		MaxAttempts:    cfg.Client.MaxReconnects,
		Base:           cfg.Client.ReconnectBase,
		Cap:            cfg.Client.ReconnectCap,
		HealthURL:      healthURL(cfg.Client.ServerURL),
		HealthInterval: cfg.Client.HealthInterval,
	})
	defer monitor.Close()

	conn.OnAck = outbox.HandleAck
	conn.OnBroadcast = outbox.HandleBroadcast
	conn.OnUserTyping = typers.Update
	conn.OnDrop = monitor.ConnectionLost

	monitor.Start()

	fmt.Println("commands: /retry <temp-id prefix>, /reconnect, /quit; anything else is sent")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "/quit":
			conn.Close()
			return
		case line == "/reconnect":
			monitor.Reconnect()
		case strings.HasPrefix(line, "/retry "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/retry "))
			if err := ui.retry(outbox, id); err != nil {
				fmt.Printf("! retry: %v\n", err)
			}
		default:
			typing.Activity()
			if _, err := outbox.Send(line); err == nil {
				typing.MessageSent()
			}
		}
	}
}

func healthURL(wsURL string) string {
	u := strings.Replace(wsURL, "ws://", "http://", 1)
	u = strings.Replace(u, "wss://", "https://", 1)
	return strings.TrimSuffix(u, "/ws") + "/health"
}

// termUI renders outbox and monitor events as plain lines. Entries are
// addressed by temp id prefix for /retry.
type termUI struct {
	tempIDs []string
}

func (u *termUI) RenderPending(tempID, sender, text string) {
	u.remember(tempID)
	fmt.Printf("[%s] %s: %s (sending...)\n", short(tempID), sender, text)
}

func (u *termUI) RenderDelivered(tempID string, msg client.Message) {
	fmt.Printf("[%s] delivered as #%s at %s\n", short(tempID), msg.ID, msg.CreatedAt.Format("15:04:05"))
}

func (u *termUI) RenderFailed(tempID, errMsg, code string) {
	fmt.Printf("[%s] FAILED (%s): %s — /retry %s\n", short(tempID), code, errMsg, short(tempID))
}

func (u *termUI) RenderIncoming(msg client.Message) {
	marker := ""
	if msg.Own {
		marker = " (you)"
	}
	fmt.Printf("%s%s: %s\n", msg.Sender, marker, msg.Text)
}

func (u *termUI) Notice(text string) {
	fmt.Printf("! %s\n", text)
}

func (u *termUI) OnStateChange(s client.ConnState, attempt int) {
	if s == client.StateConnecting {
		fmt.Printf("* %s (attempt %d)\n", s, attempt)
		return
	}
	fmt.Printf("* %s\n", s)
}

func (u *termUI) OnNotice(text string) { u.Notice(text) }

func (u *termUI) OnServerHealth(healthy bool) {
	if !healthy {
		fmt.Println("* server health check failed")
	}
}

func (u *termUI) remember(tempID string) {
	for _, id := range u.tempIDs {
		if id == tempID {
			return
		}
	}
	u.tempIDs = append(u.tempIDs, tempID)
}

func (u *termUI) retry(o *client.Outbox, prefix string) error {
	for _, id := range u.tempIDs {
		if strings.HasPrefix(id, prefix) {
			return o.Retry(id)
		}
	}
	return fmt.Errorf("no message matches %q", prefix)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
