// Package server exposes HTTP handlers, including the websocket upgrade,
// health check, and the built-in test page.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mbeckers/relaychat/internal/apperror"
)

// HandleWebSocket authenticates a connection attempt and, on success, promotes
// it to a realtime session. The order is fixed: credential verification and
// user resolution happen before the upgrade, the presence transition and
// history replay happen before the session joins the broadcast registry.
// Rejected attempts receive the literal rejection reason and never create
// session state.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.authenticateConnection(r.Context(), r)
	if err != nil {
		apperror.Write(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.markOnline(ctx, user.ID.Hex()); err != nil {
		log.Printf("Refusing connection for %s: %v", user.Username, err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reasonAuthFailed))
		_ = conn.Close()
		return
	}

	session := newSession(s, conn, sessionUser{ID: user.ID.Hex(), Username: user.Username}, r.RemoteAddr)

	// Replay is queued before registration so the history batch is the first
	// thing the session receives and never overlaps a broadcast.
	s.replayHistory(session)
	s.hub.Register(session)
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "relaychat server is running!")
}

// TestPageHandler serves an HTML page for exercising the chat manually:
// log in, connect, send messages, and watch typing indicators.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>relaychat test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 720px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"], input[type="password"] { padding: 5px; margin-right: 6px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        #typing { color: gray; font-style: italic; min-height: 1.2em; }
        .error { color: #b00020; }
        .system { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>relaychat test</h1>

    <div id="loginForm">
        <input type="text" id="login" placeholder="username or email">
        <input type="password" id="password" placeholder="password">
        <button onclick="doLogin()">Log in</button>
    </div>

    <div id="chat" style="display:none">
        <div id="messages"></div>
        <div id="typing"></div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <script>
        let ws = null;
        let typingTimer = null;

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.textContent = text;
            if (cls) el.className = cls;
            const messages = document.getElementById('messages');
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        async function doLogin() {
            const resp = await fetch('/api/auth/login', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({
                    login: document.getElementById('login').value,
                    password: document.getElementById('password').value
                })
            });
            const body = await resp.json();
            if (!resp.ok) { alert(body.message); return; }
            connect(body.token);
        }

        function connect(token) {
            const scheme = location.protocol === 'https:' ? 'wss' : 'ws';
            ws = new WebSocket(scheme + '://' + location.host + '/ws?token=' + encodeURIComponent(token));
            ws.onopen = function() {
                document.getElementById('loginForm').style.display = 'none';
                document.getElementById('chat').style.display = 'block';
                addLine('Connected', 'system');
            };
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                if (frame.event === 'message:history') {
                    frame.data.forEach(m => addLine(m.username + ': ' + m.content));
                } else if (frame.event === 'message:new') {
                    addLine(frame.data.username + ': ' + frame.data.content);
                } else if (frame.event === 'message:error') {
                    addLine(frame.data.message, 'error');
                } else if (frame.event === 'user:typing') {
                    document.getElementById('typing').textContent =
                        frame.data.isTyping ? frame.data.username + ' is typing...' : '';
                }
            };
            ws.onclose = function() { addLine('Disconnected', 'system'); };
        }

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ event: event, data: data }));
            }
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            send('message:send', { content: input.value });
            send('user:typing:stop');
            input.value = '';
        }

        document.addEventListener('DOMContentLoaded', function() {
            const input = document.getElementById('messageInput');
            input.addEventListener('keypress', function(e) {
                if (e.key === 'Enter') { sendMessage(); return; }
                send('user:typing:start');
                clearTimeout(typingTimer);
                typingTimer = setTimeout(() => send('user:typing:stop'), 1500);
            });
        });
    </script>
</body>
</html>`
