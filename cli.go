package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flankk/node/pkg/channel"
	"github.com/flankk/node/pkg/evm"
	"github.com/flankk/node/pkg/log"
	"github.com/flankk/node/pkg/sign"
	"github.com/flankk/node/pkg/store"
)

const usage = `Usage: flankk <command> [arguments]

  create <token> <peer> [url]                   create a channel with peer
  inspect <channel_id>                          show the ledger of a channel
  export <channel_id>                           print the channel backup
  deposit <channel_id> <self> <peer>            add deposits to the ledger
  transfer <channel_id> <amount> [lock_secs]    send amount, time locked if lock_secs is set
  apply <channel_id> <batch.json> <onchain>     apply a peer batch given the on-chain total
  sign-update <channel_id>                      sign the current ledger
  countersign <channel_id> <signature>          store the peer signature of the current ledger
  open-op <channel_id> [node]                   print the open channel operation with permit
  settle <channel_id> [end_time]                sign the settlement of the current ledger`

var errUsage = errors.New("invalid arguments")

// cliEnv holds the dependencies of the command line interface.
type cliEnv struct {
	config   *Config
	service  *ChannelService
	store    *store.Store
	registry *prometheus.Registry
	out      io.Writer
}

func runCli(logger log.Logger, args []string) {
	logger = logger.WithName("cli")
	if len(args) == 0 || args[0] == "help" {
		fmt.Fprintln(os.Stderr, usage)
		return
	}

	ctx := context.Background()
	env, err := setupCli(ctx, logger)
	if err != nil {
		logger.Fatal("failed to set up", "error", err)
	}

	err = env.run(ctx, args)
	if path := env.config.chain.MetricsTextfile; path != "" {
		if werr := prometheus.WriteToTextfile(path, env.registry); werr != nil {
			logger.Error("failed to write metrics", "path", path, "error", werr)
		}
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("command failed", "command", args[0], "error", err)
	}
}

func setupCli(ctx context.Context, logger log.Logger) (*cliEnv, error) {
	config, err := LoadConfig(logger)
	if err != nil {
		return nil, err
	}

	db, err := ConnectToDB(config.dbConf, logger)
	if err != nil {
		return nil, err
	}

	signer, err := sign.NewEthereumSigner(config.privateKeyHex)
	if err != nil {
		return nil, err
	}
	logger.Info("signer initialized", "address", signer.Address().Hex())

	reader, err := evm.Dial(ctx, config.chain.RPC, config.chain.ChainID)
	if err != nil {
		return nil, err
	}

	cc := &channel.ChainContext{
		ChainID:   config.chain.ChainID,
		Reader:    reader,
		Verifiers: config.verifiers,
		Logger:    logger.WithName("ledger"),
	}
	return newCliEnv(config, store.New(db), cc, signer, logger, os.Stdout), nil
}

func newCliEnv(config *Config, st *store.Store, cc *channel.ChainContext, signer sign.Signer, logger log.Logger, out io.Writer) *cliEnv {
	registry := prometheus.NewRegistry()
	return &cliEnv{
		config:   config,
		service:  NewChannelService(st, cc, signer, NewMetricsWithRegistry(registry), config.chain.MaxConditionTimeout, logger),
		store:    st,
		registry: registry,
		out:      out,
	}
}

func (e *cliEnv) run(ctx context.Context, args []string) error {
	name, args := args[0], args[1:]

	if name == "create" {
		return e.create(ctx, args)
	}
	if len(args) < 1 {
		return errUsage
	}
	if !isHash(args[0]) {
		return fmt.Errorf("%w: channel id %q", errUsage, args[0])
	}
	ch, err := e.service.Load(ctx, common.HexToHash(args[0]))
	if err != nil {
		return err
	}
	args = args[1:]

	switch name {
	case "inspect":
		return e.inspect(ctx, ch)
	case "export":
		return e.printJSON(ch.Backup())
	case "deposit":
		return e.deposit(ctx, ch, args)
	case "transfer":
		return e.transfer(ctx, ch, args)
	case "apply":
		return e.apply(ctx, ch, args)
	case "sign-update":
		sig, err := e.service.SignUpdate(ctx, ch)
		if err != nil {
			return err
		}
		return e.printJSON(map[string]any{"signature": sig, "status": ch.Status()})
	case "countersign":
		return e.countersign(ctx, ch, args)
	case "open-op":
		op, err := ch.OpenChannelOp(ctx, len(args) > 0 && args[0] == "node")
		if err != nil {
			return err
		}
		return e.printJSON(op)
	case "settle":
		return e.settle(ctx, ch, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}

func (e *cliEnv) create(ctx context.Context, args []string) error {
	if len(args) < 2 || !common.IsHexAddress(args[0]) || !common.IsHexAddress(args[1]) {
		return errUsage
	}
	params := CreateChannelParams{
		Token:  common.HexToAddress(args[0]),
		Peer:   common.HexToAddress(args[1]),
		Domain: e.config.chain.Domain(),
	}
	if len(args) > 2 {
		params.URL = args[2]
	}

	ch, err := e.service.Create(ctx, params)
	if err != nil {
		return err
	}
	return e.printJSON(map[string]any{"channelId": ch.ID(), "backup": ch.Backup()})
}

func (e *cliEnv) deposit(ctx context.Context, ch *channel.Channel, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	self, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	peer, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	instructions, err := e.service.Deposit(ctx, ch, self, peer)
	if err != nil {
		return err
	}
	return e.printJSON(channel.SerializeInstructions(instructions))
}

func (e *cliEnv) transfer(ctx context.Context, ch *channel.Channel, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}

	var cond channel.Condition = channel.None{}
	if len(args) > 1 {
		secs, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: lock %q", errUsage, args[1])
		}
		deadline := new(big.Int).Add(e.service.cc.Now(), new(big.Int).SetUint64(secs))
		cond = channel.TLC{Deadline: deadline}
	}

	instructions, err := e.service.Transfer(ctx, ch, amount, cond, nil)
	if err != nil {
		return err
	}
	return e.printJSON(channel.SerializeInstructions(instructions))
}

func (e *cliEnv) apply(ctx context.Context, ch *channel.Channel, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var batch []channel.SerializedInstruction
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}
	onchain, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	if _, err := e.service.Apply(ctx, ch, batch, onchain); err != nil {
		return err
	}
	return e.inspect(ctx, ch)
}

func (e *cliEnv) countersign(ctx context.Context, ch *channel.Channel, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	sig, err := hexutil.Decode(args[0])
	if err != nil {
		return fmt.Errorf("%w: signature: %v", errUsage, err)
	}
	if err := e.service.Countersign(ctx, ch, sig); err != nil {
		return err
	}
	return e.printJSON(map[string]any{"status": ch.Status()})
}

func (e *cliEnv) settle(ctx context.Context, ch *channel.Channel, args []string) error {
	var endTime *big.Int
	if len(args) > 0 {
		t, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		endTime = t
	}

	sig, err := e.service.Settle(ctx, ch, endTime)
	if err != nil {
		return err
	}
	return e.printJSON(map[string]any{"signature": sig, "status": ch.Status()})
}

func (e *cliEnv) inspect(ctx context.Context, ch *channel.Channel) error {
	state, err := ch.State()
	if err != nil {
		return err
	}
	balances, err := ch.Balances()
	if err != nil {
		return err
	}
	batches, err := e.store.Batches(ctx, ch.ID())
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "Channel %s (%s)\n", ch.ID().Hex(), ch.Status())
	fmt.Fprintf(e.out, "Self %s (%s), peer %s\n", ch.Self().Hex(), ch.SelfSide(), ch.Peer().Hex())
	fmt.Fprintf(e.out, "Nonce %d, state hash %s, %d batches\n", state.Nonce(), state.StateHash().Hex(), len(batches))

	t := table.NewWriter()
	t.SetOutputMirror(e.out)
	t.AppendHeader(table.Row{"ID", "Nonce", "Condition", "Deadline", "From", "To"})
	t.AppendSeparator()
	for _, stmt := range state.Statements() {
		deadline := "-"
		if d, ok := channel.ConditionDeadline(stmt.Condition()); ok {
			deadline = time.Unix(d.Int64(), 0).UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{shortHash(stmt.ID()), stmt.Nonce(), stmt.ConditionType(), deadline, stmt.From(), stmt.To()})
	}
	t.Render()

	b := table.NewWriter()
	b.SetOutputMirror(e.out)
	b.AppendHeader(table.Row{"Party", "Settled", "Incoming"})
	b.AppendRow(table.Row{"self", balances.SelfSettled, balances.SelfIncoming})
	b.AppendRow(table.Row{"peer", balances.PeerSettled, balances.PeerIncoming})
	b.AppendFooter(table.Row{"total", balances.Total, ""})
	b.Render()
	return nil
}

func (e *cliEnv) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseAmount accepts decimal or 0x prefixed hex integers.
func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount %q", errUsage, s)
	}
	return v, nil
}

func isHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

func shortHash(h common.Hash) string {
	s := h.Hex()
	return s[:10] + ".." + s[len(s)-4:]
}
