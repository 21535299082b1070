package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NicoNex/echotron/v3"
	"github.com/labstack/gommon/log"

	"github.com/ngoduykhanh/wgserver/manager"
)

// Sender is the part of the echotron API the bot talks through
type Sender interface {
	SendMessage(text string, chatID int64, opts *echotron.MessageOptions) (echotron.APIResponseMessage, error)
	SendPhoto(file echotron.InputFile, chatID int64, opts *echotron.PhotoOptions) (echotron.APIResponseMessage, error)
	SendDocument(file echotron.InputFile, chatID int64, opts *echotron.DocumentOptions) (echotron.APIResponseMessage, error)
}

// Bot answers chat commands by running manager operations on one interface
type Bot struct {
	API        Sender
	Manager    *manager.Manager
	Device     string
	ConfigPath string
	AdminID    int64
	Timeout    time.Duration
}

// Start connects to the bot API and serves commands until ctx is cancelled.
// An empty token disables the bot.
func Start(ctx context.Context, token string, b *Bot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("[PANIC] recovered from panic: %v", r)
		}
	}()

	if token == "" {
		return nil
	}

	api := echotron.NewAPI(token)
	res, err := api.GetMe()
	if err != nil || !res.Ok {
		log.Warnf("[Telegram] Unable to connect to bot.\n%v\n%v", res.Description, err)
		return err
	}
	log.Infof("[Telegram] Authorized as %s", res.Result.Username)
	b.API = api

	updates := echotron.PollingUpdatesOptions(token, false, echotron.UpdateOptions{AllowedUpdates: []echotron.UpdateType{echotron.MessageUpdate}})
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				b.Handle(ctx, update.Message)
			}
		}
	}
}

// Handle dispatches a single chat message
func (b *Bot) Handle(ctx context.Context, msg *echotron.Message) {
	cmd, arg := parseCommand(msg.Text)
	if cmd == "" {
		return
	}

	if cmd != "addclient" && msg.Chat.ID != b.AdminID {
		b.send(msg.Chat.ID, "access denied")
		return
	}

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	var err error
	switch cmd {
	case "up":
		if err = b.Manager.BringUp(ctx, b.Device, b.ConfigPath); err == nil {
			b.send(msg.Chat.ID, "wg server started")
		}
	case "down":
		if err = b.Manager.BringDown(ctx, b.Device); err == nil {
			b.send(msg.Chat.ID, "wg server stopped")
		}
	case "reboot":
		if err = b.Manager.Reboot(ctx, b.Device, b.ConfigPath); err == nil {
			b.send(msg.Chat.ID, "wg server restarted")
		}
	case "addclient":
		err = b.addClient(ctx, arg)
	case "removeclient":
		err = b.removeClient(ctx, arg)
	case "listclients":
		err = b.listClients(msg.Chat.ID)
	case "config":
		err = b.sendConfig(msg.Chat.ID, arg)
	default:
		b.send(msg.Chat.ID, "unknown command")
		return
	}

	if err != nil {
		b.reportToAdmin(msg, err)
	}
}

func (b *Bot) addClient(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("usage: /addclient <name>")
	}
	id, err := b.Manager.AddClient(ctx, b.Device, b.ConfigPath, name)
	if err != nil {
		return err
	}
	b.send(b.AdminID, fmt.Sprintf("added client with id: %d", id))
	return nil
}

func (b *Bot) removeClient(ctx context.Context, arg string) error {
	id, err := parseID(arg, "/removeclient")
	if err != nil {
		return err
	}
	if err := b.Manager.RemoveClient(ctx, b.Device, b.ConfigPath, id); err != nil {
		return err
	}
	b.send(b.AdminID, fmt.Sprintf("removed client with id: %d", id))
	return nil
}

func (b *Bot) listClients(chatID int64) error {
	clients, err := b.Manager.ListClients(b.ConfigPath)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		b.send(chatID, "no clients")
		return nil
	}

	lines := make([]string, 0, len(clients))
	for _, client := range clients {
		lines = append(lines, fmt.Sprintf("%d: %s", client.ID, client.Name))
	}
	b.send(chatID, strings.Join(lines, "\n"))
	return nil
}

func (b *Bot) sendConfig(chatID int64, arg string) error {
	id, err := parseID(arg, "/config")
	if err != nil {
		return err
	}
	config, err := b.Manager.GetClientConfigText(b.ConfigPath, id)
	if err != nil {
		return err
	}
	qr, err := b.Manager.GetClientConfigQR(b.ConfigPath, id)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("wg%d", id)
	if _, err := b.API.SendPhoto(echotron.NewInputFileBytes("qr.png", qr), chatID, &echotron.PhotoOptions{Caption: name}); err != nil {
		log.Error(err)
		return fmt.Errorf("unable to send qr picture")
	}
	if _, err := b.API.SendDocument(echotron.NewInputFileBytes(name+".conf", []byte(config)), chatID, nil); err != nil {
		log.Error(err)
		return fmt.Errorf("unable to send conf file")
	}
	return nil
}

func (b *Bot) reportToAdmin(msg *echotron.Message, err error) {
	username := msg.Chat.Username
	if username == "" {
		username = "-"
	}
	log.Warnf("[Telegram] Command %q from chat %d failed: %v", msg.Text, msg.Chat.ID, err)
	b.send(b.AdminID, fmt.Sprintf("chat_id: %d, username: %s, error: |%v|", msg.Chat.ID, username, err))
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.API.SendMessage(text, chatID, nil); err != nil {
		log.Errorf("[Telegram] Unable to send message to %d: %v", chatID, err)
	}
}

// parseCommand splits "/cmd@botname arg" into its lowercase command and trimmed argument
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, arg, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func parseID(arg string, usage string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("usage: %s <id>", usage)
	}
	return id, nil
}
