// Command client is a terminal chat client: it logs in, shows the latest
// page of a room, follows the room over the gateway websocket and sends
// over the REST API.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chunkchat/pkg/logger"
	"github.com/mahaj/chunkchat/pkg/model"
	"go.uber.org/zap"
)

type page struct {
	ID       string          `json:"id"`
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

type api struct {
	base  string
	token string
	http  *http.Client
}

func (a *api) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, a.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *api) login(userID string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := a.do(http.MethodPost, "/login", map[string]string{"user_id": userID}, &resp); err != nil {
		return err
	}
	a.token = resp.Token
	return nil
}

func printMessage(m model.Message) {
	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	content := m.Content
	if m.Type == model.TypeDocument {
		content = fmt.Sprintf("[document %s, %d bytes]", m.FileName, m.FileSize)
	}
	fmt.Printf("\r[%s] %s: %s  (%s)\n", ts, m.Sender, content, m.ID)
}

func printEvent(ev model.Event, self string) {
	switch ev.Type {
	case model.EventMessage:
		var m model.Message
		if err := json.Unmarshal(ev.Payload, &m); err == nil && m.Sender != self {
			printMessage(m)
		}
	case model.EventTyping:
		if ev.UserID != self {
			fmt.Printf("\r%s is typing...\n", ev.UserID)
		}
	case model.EventPresence:
		var p struct {
			Status string `json:"status"`
		}
		json.Unmarshal(ev.Payload, &p)
		fmt.Printf("\r* %s %s\n", ev.UserID, p.Status)
	case model.EventReaction:
		fmt.Printf("\r* %s reacted: %s\n", ev.UserID, ev.Payload)
	case model.EventReadReceipt:
		fmt.Printf("\r* %s read up to %s\n", ev.UserID, ev.Payload)
	}
	fmt.Print("> ")
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	roomID := flag.String("room", "general", "room id")
	dmUser := flag.String("dm", "", "user id to dm (overrides -room)")
	flag.Parse()

	log := logger.Must("client", "warn", "")
	defer log.Sync()

	room := *roomID
	if *dmUser != "" {
		u1, u2 := *userID, *dmUser
		if u1 > u2 {
			u1, u2 = u2, u1
		}
		room = fmt.Sprintf("dm:%s:%s", u1, u2)
	}

	a := &api{base: *apiAddr, http: &http.Client{Timeout: 10 * time.Second}}
	if err := a.login(*userID); err != nil {
		log.Fatal("login", zap.Error(err))
	}

	var latest page
	if err := a.do(http.MethodGet, "/messages/latest/"+url.PathEscape(room), nil, &latest); err != nil {
		log.Fatal("load history", zap.Error(err))
	}
	for _, m := range latest.Messages {
		printMessage(m)
	}
	oldest := latest.ID

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Add("Authorization", "Bearer "+a.token)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial gateway", zap.String("url", u.String()), zap.Error(err))
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := c.ReadMessage()
			if err != nil {
				log.Warn("read", zap.Error(err))
				return
			}
			// the gateway may batch several events into one frame
			for _, line := range bytes.Split(frame, []byte{'\n'}) {
				var ev model.Event
				if err := json.Unmarshal(line, &ev); err != nil {
					continue
				}
				printEvent(ev, *userID)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			fields := strings.Fields(text)
			switch {
			case text == "":
			case text == "/quit":
				interrupt <- os.Interrupt
				return
			case text == "/typing":
				if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`)); err != nil {
					log.Warn("write", zap.Error(err))
					return
				}
			case text == "/older":
				var p page
				if err := a.do(http.MethodGet, "/messages/older/"+url.PathEscape(room)+"/"+oldest, nil, &p); err != nil {
					fmt.Println(err)
					break
				}
				for _, m := range p.Messages {
					printMessage(m)
				}
				oldest = p.ID
				if !p.HasMore {
					fmt.Println("* start of history")
				}
			case fields[0] == "/react" && len(fields) == 3:
				body := map[string]string{"roomId": room, "messageId": fields[1], "emoji": fields[2]}
				if err := a.do(http.MethodPost, "/messages/react", body, nil); err != nil {
					fmt.Println(err)
				}
			case fields[0] == "/read" && len(fields) == 2:
				body := map[string]string{"roomId": room, "lastReadMessageId": fields[1]}
				if err := a.do(http.MethodPost, "/messages/mark-read", body, nil); err != nil {
					fmt.Println(err)
				}
			default:
				var sent struct {
					MessageID string `json:"messageId"`
				}
				body := map[string]string{"roomId": room, "content": text, "type": "text"}
				if err := a.do(http.MethodPost, "/messages/send", body, &sent); err != nil {
					fmt.Println(err)
				}
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Warn("write close", zap.Error(err))
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
