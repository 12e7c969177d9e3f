package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/marymwortman-lang/PureConnect/internal/config"
	"github.com/marymwortman-lang/PureConnect/internal/dns"
	"github.com/marymwortman-lang/PureConnect/internal/protocol"
	"github.com/marymwortman-lang/PureConnect/internal/registry"
	"github.com/marymwortman-lang/PureConnect/internal/relay"
	"github.com/marymwortman-lang/PureConnect/internal/ui"
)

const roomsTimeout = 10 * time.Second

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the relay's open rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRooms(cmd.Context())
	},
}

func listRooms(ctx context.Context) error {
	serverURL := flagServer
	if flagDiscover {
		found, err := discoverRelay(ctx)
		if err != nil {
			return err
		}
		serverURL = found.URL
	}

	cfg, err := config.Load(config.Options{ServerURL: serverURL})
	if err != nil {
		return err
	}

	client := &http.Client{
		Transport: &http.Transport{DialContext: dns.NewResolver().DialContext},
	}
	rooms, err := fetchRooms(ctx, client, cfg.HTTPBase()+relay.PathRooms)
	if err != nil {
		return err
	}
	fmt.Println(ui.RoomsTable(rooms, registry.MaxParticipants))
	return nil
}

func fetchRooms(ctx context.Context, client *http.Client, url string) ([]protocol.RoomInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, roomsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: %s", resp.Status)
	}

	var rooms []protocol.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Relay websocket URL")
	roomsCmd.Flags().BoolVarP(&flagDiscover, "discover", "d", false, "Find a relay on the local network")
	roomsCmd.MarkFlagsMutuallyExclusive("server", "discover")
}
