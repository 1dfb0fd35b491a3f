package root

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/parley-im/parley-core/pkg/account"
	"github.com/parley-im/parley-core/pkg/connection"
	"github.com/parley-im/parley-core/pkg/heartbeat"
	"github.com/parley-im/parley-core/pkg/httpclient"
	"github.com/parley-im/parley-core/pkg/telemetry"
	"github.com/parley-im/parley-core/pkg/userconfig"
)

type debugFlags struct {
	jid         string
	baseURL     string
	dataPairs   []string
	readTimeout time.Duration
}

func newDebugCmd() *cobra.Command {
	var flags debugFlags

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Debug tools",
	}

	trackCmd := &cobra.Command{
		Use:   "track <event-name>",
		Short: "Record one telemetry event",
		Args:  cobra.ExactArgs(1),
		RunE:  flags.runDebugTrackCommand,
	}
	trackCmd.Flags().StringVar(&flags.jid, "jid", "", "Account JID (default: the configured account)")
	trackCmd.Flags().StringVar(&flags.baseURL, "collect-url", "", "Override the collection service base URL")
	trackCmd.Flags().StringArrayVar(&flags.dataPairs, "data", nil, "Event data as key=value (repeatable)")
	cmd.AddCommand(trackCmd)

	connectCmd := &cobra.Command{
		Use:   "connect <endpoint> [jid]",
		Short: "Open a managed connection and stream its events; stdin lines are sent as stanzas",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  flags.runDebugConnectCommand,
	}
	connectCmd.Flags().StringVar(&flags.baseURL, "collect-url", "", "Override the collection service base URL")
	connectCmd.Flags().DurationVar(&flags.readTimeout, "read-timeout", connection.DefaultReadTimeout, "Inbound frame timeout")
	cmd.AddCommand(connectCmd)

	return cmd
}

// resolveAccount picks the account JID from the flag or the user config.
func (f *debugFlags) resolveAccount(explicit string) (string, error) {
	if address := cmp.Or(explicit, f.jid); address != "" {
		return address, nil
	}

	config, err := userconfig.Load()
	if err != nil {
		return "", err
	}
	if config.Account == "" {
		return "", fmt.Errorf("no account JID given and none configured; pass one or set 'account' in %s", userconfig.Path())
	}
	return config.Account, nil
}

// buildDispatcher assembles the telemetry composition the desktop shell
// would normally own: identity from the account store, privacy from the user
// config, platform from the host.
func (f *debugFlags) buildDispatcher(store *account.Store) *telemetry.Dispatcher {
	opts := []telemetry.Option{
		telemetry.WithHTTPClient(httpclient.New()),
	}

	baseURL := f.baseURL
	if baseURL == "" {
		if config, err := userconfig.Load(); err == nil {
			baseURL = config.GetSettings().CollectURL
		}
	}
	if baseURL != "" {
		opts = append(opts, telemetry.WithBaseURL(baseURL))
	}

	return telemetry.NewDispatcher(slog.Default(), store, userconfig.NewPrivacy(), runtime.GOOS, opts...)
}

func (f *debugFlags) runDebugTrackCommand(cmd *cobra.Command, args []string) error {
	name, err := telemetry.ParseEventName(args[0])
	if err != nil {
		return err
	}

	address, err := f.resolveAccount("")
	if err != nil {
		return err
	}

	store := &account.Store{}
	if err := store.SignIn(address); err != nil {
		return err
	}

	var data any
	if pairs := parseDataPairs(f.dataPairs); pairs != nil {
		data = pairs
	}

	d := f.buildDispatcher(store)
	d.Record(cmd.Context(), name, data)

	if !d.Flush(15 * time.Second) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Timed out waiting for delivery")
	}

	// Outcomes are absorbed by design; the debug log has the details
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s (best-effort; run with --debug for the outcome)\n", name)
	return nil
}

func (f *debugFlags) runDebugConnectCommand(cmd *cobra.Command, args []string) error {
	endpoint := args[0]

	var explicit string
	if len(args) > 1 {
		explicit = args[1]
	}
	address, err := f.resolveAccount(explicit)
	if err != nil {
		return err
	}

	store := &account.Store{}
	if err := store.SignIn(address); err != nil {
		return err
	}

	d := f.buildDispatcher(store)
	ctx := telemetry.WithDispatcher(cmd.Context(), d)

	// Surface live opt-out changes while the session runs
	privacy := userconfig.NewPrivacy()
	if watcher, err := userconfig.WatchConfig(func() {
		fmt.Fprintf(cmd.ErrOrStderr(), "user config changed; telemetry opt-out: %v\n", privacy.TelemetryOptedOut())
	}); err == nil {
		defer watcher.Close()
	} else {
		slog.Warn("Failed to watch user config", "error", err)
	}

	reporter := heartbeat.NewReporter(slog.Default(), d)
	go func() { _ = reporter.Run(ctx) }()

	sink := newPrintSink(cmd.OutOrStdout())
	manager := connection.NewManager(slog.Default(), sink)

	id := uuid.New().String()
	if err := manager.Connect(ctx, id, address, endpoint, connection.WithReadTimeout(f.readTimeout)); err != nil {
		return err
	}
	telemetry.Record(ctx, telemetry.EventConnect, map[string]any{"endpoint": endpoint})

	// Forward stdin lines as stanzas
	go func() {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if err := manager.Send(id, scanner.Text()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = manager.Disconnect(id)
	case <-sink.disconnected:
	}

	manager.Destroy(id)
	telemetry.Record(ctx, telemetry.EventDisconnect, nil)
	store.SignOut()

	d.Flush(5 * time.Second)
	return nil
}

func parseDataPairs(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}

	data := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		data[key] = value
	}
	return data
}

// printSink writes connection events to the command output and signals the
// first disconnected state.
type printSink struct {
	out io.Writer

	once         sync.Once
	disconnected chan struct{}
}

func newPrintSink(out io.Writer) *printSink {
	return &printSink{
		out:          out,
		disconnected: make(chan struct{}),
	}
}

func (s *printSink) ConnectionState(id string, state connection.State) {
	fmt.Fprintf(s.out, "connection %s: %s\n", id, state)

	if state == connection.StateDisconnected {
		s.once.Do(func() { close(s.disconnected) })
	}
}

func (s *printSink) ConnectionReceive(_ string, stanza string) {
	fmt.Fprintf(s.out, "<< %s\n", stanza)
}
