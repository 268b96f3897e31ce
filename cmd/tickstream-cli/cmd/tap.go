package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var tapPayload string

var tapCmd = &cobra.Command{
	Use:   "tap <route>",
	Short: "Subscribe to a route and stream updates to stdout",
	Long: `Open a WebSocket connection, subscribe to the given route and print
every update frame as it arrives. Interrupt to unsubscribe and exit.

Examples:
  tickstream-cli tap bars --payload '{"symbol":"AAPL","resolution":"1"}'
  tickstream-cli tap books --payload '{"symbol":"BTCUSD","depth":10}'`,
	Args: cobra.ExactArgs(1),
	RunE: tapHandler,
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func tapHandler(cmd *cobra.Command, args []string) error {
	route := args[0]

	var payload json.RawMessage
	if tapPayload != "" {
		if !json.Valid([]byte(tapPayload)) {
			return fmt.Errorf("--payload is not valid JSON")
		}
		payload = json.RawMessage(tapPayload)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+serverAddr+"/ws", nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(envelope{Type: route + ".subscribe", Payload: payload}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	frames := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			frames <- data
		}
	}()

	for {
		select {
		case <-quit:
			_ = conn.WriteJSON(envelope{Type: route + ".unsubscribe", Payload: payload})
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-errs:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case data := <-frames:
			fmt.Println(string(data))
		}
	}
}

func init() {
	tapCmd.Flags().StringVar(&tapPayload, "payload", "", "subscription payload as JSON")
	rootCmd.AddCommand(tapCmd)
}
