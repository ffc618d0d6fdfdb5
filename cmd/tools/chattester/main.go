package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/finbot/backend/internal/handler/stream"
	"github.com/zhouzirui/finbot/backend/internal/handler/ws"
	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/finbot/backend/internal/service/chat"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	defaultBase := "http://localhost:" + envOr("PORT", "8080")
	base := flag.String("base", defaultBase, "后端地址")
	mode := flag.String("mode", "ws", "传输方式: ws 或 sse")
	personaID := flag.String("persona", "student", "persona ID: student 或 professional")
	text := flag.String("text", "How should I start budgeting?", "发送的消息")
	webSearch := flag.Bool("web", false, "是否启用网络搜索")
	sessionID := flag.String("session", "", "复用已有 sessionID，留空则新建")
	timeout := flag.Duration("timeout", 90*time.Second, "整体超时时间")
	flag.Parse()

	if *mode != "ws" && *mode != "sse" {
		flag.Usage()
		log.Fatal("请通过 -mode=ws 或 -mode=sse 指定传输方式")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	id := *sessionID
	if id == "" {
		session, err := createSession(ctx, *base, *personaID)
		if err != nil {
			log.Fatalf("创建会话失败: %v", err)
		}
		id = session.ID
		log.Printf("会话已创建: session=%s persona=%s", session.ID, session.PersonaID)
	}

	var err error
	switch *mode {
	case "ws":
		err = runWebSocket(ctx, *base, id, *text, *webSearch)
	case "sse":
		err = runSSE(ctx, *base, id, *text, *webSearch)
	}
	if err != nil {
		log.Fatalf("对话失败: %v", err)
	}
}

func createSession(ctx context.Context, base, personaID string) (chat.Session, error) {
	body, _ := json.Marshal(map[string]string{"personaId": personaID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/session", bytes.NewReader(body))
	if err != nil {
		return chat.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return chat.Session{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return chat.Session{}, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr["error"])
	}

	var session chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return chat.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func runWebSocket(ctx context.Context, base, sessionID, text string, webSearch bool) error {
	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/api/ws/" + sessionID

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	turn := map[string]any{"type": ws.TypeTurn, "data": ws.TurnData{Text: text, WebSearch: webSearch}}
	if err := conn.WriteJSON(turn); err != nil {
		return fmt.Errorf("send turn: %w", err)
	}

	var userSeen bool
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case ws.TypeConnected:
			log.Printf("已连接")
		case ws.TypeError:
			var data ws.ErrorData
			_ = json.Unmarshal(msg.Data, &data)
			return fmt.Errorf("server error (%d): %s", data.Status, data.Message)
		case ws.TypeEvent:
			var ev chatservice.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			if ev.Message != nil && ev.Message.Sender == chat.SenderUser {
				userSeen = true
			}
			if !userSeen {
				continue
			}
			printEvent(ev)
			if ev.Kind == chatservice.EventIdle {
				return nil
			}
		}
	}
}

func runSSE(ctx context.Context, base, sessionID, text string, webSearch bool) error {
	q := url.Values{}
	q.Set("message", text)
	q.Set("webSearch", fmt.Sprint(webSearch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/stream/"+sessionID+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk stream.StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}

		switch chunk.Event {
		case stream.EventStart:
			log.Printf("[start] persona=%s", chunk.Content)
		case stream.EventMessage:
			fmt.Printf("\r%s", chunk.Message.Text)
		case stream.EventEnd:
			fmt.Println()
			printSources(chunk.Message)
			return nil
		case stream.EventError:
			fmt.Println()
			return fmt.Errorf("%s", chunk.Error)
		}
	}
	return scanner.Err()
}

func printEvent(ev chatservice.Event) {
	switch ev.Kind {
	case chatservice.EventUpdated:
		fmt.Printf("\r%s", ev.Message.Text)
	case chatservice.EventFrozen:
		fmt.Println()
		if ev.Message.State == chat.StateFailed {
			log.Printf("[failed] %s", ev.Message.Text)
			return
		}
		printSources(ev.Message)
	case chatservice.EventIdle:
		log.Printf("[idle]")
	}
}

func printSources(msg *chat.Message) {
	if msg == nil {
		return
	}
	for i, src := range msg.Sources {
		fmt.Printf("  [%d] %s %s\n", i+1, src.Title, src.URI)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
