package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/channel"
	"github.com/flankk/node/pkg/log"
	"github.com/flankk/node/pkg/sign"
	"github.com/flankk/node/pkg/store"
)

var errConditionTimeout = errors.New("condition_timeout_too_long")

// ChannelService drives channel ledgers stored in the database.
type ChannelService struct {
	store               *store.Store
	cc                  *channel.ChainContext
	signer              sign.Signer
	metrics             *Metrics
	tracer              trace.Tracer
	logger              log.Logger
	maxConditionTimeout uint64
}

// NewChannelService creates a new ChannelService.
func NewChannelService(st *store.Store, cc *channel.ChainContext, signer sign.Signer, metrics *Metrics, maxConditionTimeout uint64, logger log.Logger) *ChannelService {
	return &ChannelService{
		store:               st,
		cc:                  cc,
		signer:              signer,
		metrics:             metrics,
		tracer:              otel.Tracer("flankk/channel"),
		logger:              logger.WithName("channel"),
		maxConditionTimeout: maxConditionTimeout,
	}
}

// start opens a span for op and puts a span aware logger into the context.
func (s *ChannelService) start(ctx context.Context, op string, channelID common.Hash) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "ChannelService."+op,
		trace.WithAttributes(attribute.String("channel_id", channelID.Hex())))
	return log.SetContextLogger(ctx, s.logger.WithKV("channel", channelID.Hex())), span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create registers a new channel with peer and returns it with an empty ledger.
func (s *ChannelService) Create(ctx context.Context, params CreateChannelParams) (ch *channel.Channel, err error) {
	partyA, partyB := s.signer.Address(), params.Peer
	if params.PeerIsPartyA {
		partyA, partyB = partyB, partyA
	}

	ch, err = channel.NewChannel(params.Token, params.Domain, partyA, partyB, s.signer, s.cc, channel.WithURL(params.URL))
	if err != nil {
		return nil, err
	}

	ctx, span := s.start(ctx, "Create", ch.ID())
	defer func() { finish(span, err) }()

	if _, err := s.store.LoadBackup(ctx, ch.ID()); err == nil {
		return nil, fmt.Errorf("channel %s already exists", ch.ID())
	} else if !errors.Is(err, store.ErrChannelNotFound) {
		return nil, err
	}

	ch.Attach(channel.NewState())
	if err := s.store.SaveBackup(ctx, ch); err != nil {
		return nil, err
	}
	log.FromContext(ctx).Info("channel created", "self", ch.SelfSide(), "peer", ch.Peer())
	return ch, nil
}

// CreateChannelParams identifies a channel to create.
type CreateChannelParams struct {
	Token        common.Address
	Peer         common.Address
	PeerIsPartyA bool
	Domain       flankk.Domain
	URL          string
}

// Load restores a channel and its ledger from the store. The stored ledger is
// trusted, its signatures are not checked.
func (s *ChannelService) Load(ctx context.Context, channelID common.Hash) (*channel.Channel, error) {
	backup, err := s.store.LoadBackup(ctx, channelID)
	if err != nil {
		return nil, err
	}
	state, err := s.store.LoadState(ctx, channelID, s.cc)
	if err != nil {
		return nil, err
	}
	return channel.Restore(backup, s.signer, s.cc, state, true)
}

// Deposit adds self and peer deposits to the ledger.
func (s *ChannelService) Deposit(ctx context.Context, ch *channel.Channel, self, peer *big.Int) (instructions []channel.Instruction, err error) {
	ctx, span := s.start(ctx, "Deposit", ch.ID())
	defer func() { finish(span, err) }()

	instructions, err = ch.CraftVolumeExpand(self, peer, channel.None{})
	s.metrics.RecordBatch("local", instructions, err)
	if err != nil {
		return nil, err
	}
	s.metrics.ExpansionsCrafted.Inc()
	return instructions, s.commit(ctx, ch, instructions)
}

// Transfer moves amount to the peer under cond.
func (s *ChannelService) Transfer(ctx context.Context, ch *channel.Channel, amount *big.Int, cond channel.Condition, proofs map[common.Hash][]byte) (instructions []channel.Instruction, err error) {
	if cond == nil {
		cond = channel.None{}
	}

	ctx, span := s.start(ctx, "Transfer", ch.ID())
	defer func() { finish(span, err) }()
	span.SetAttributes(attribute.String("amount", amount.String()), attribute.String("condition", string(cond.Type())))

	instructions, err = ch.CraftTransfer(ctx, amount, cond, proofs)
	s.metrics.RecordBatch("local", instructions, err)
	if err != nil {
		return nil, err
	}
	s.metrics.TransfersCrafted.Inc()
	return instructions, s.commit(ctx, ch, instructions)
}

// Apply validates a batch received from the peer and applies it to the ledger.
func (s *ChannelService) Apply(ctx context.Context, ch *channel.Channel, batch []channel.SerializedInstruction, onchainTotal *big.Int) (instructions []channel.Instruction, err error) {
	ctx, span := s.start(ctx, "Apply", ch.ID())
	defer func() {
		s.metrics.RecordBatch("peer", instructions, err)
		finish(span, err)
	}()

	instructions, err = channel.ParseInstructions(ctx, batch, s.cc)
	if err != nil {
		return nil, err
	}
	if !channel.ValidateTimeouts(instructions, s.cc.Now(), s.maxConditionTimeout) {
		return nil, errConditionTimeout
	}
	if err = ch.ApplyInstructions(instructions, onchainTotal); err != nil {
		return nil, err
	}
	return instructions, s.commit(ctx, ch, instructions)
}

// SignUpdate signs the current ledger and stores the signature.
func (s *ChannelService) SignUpdate(ctx context.Context, ch *channel.Channel) (sig sign.Signature, err error) {
	ctx, span := s.start(ctx, "SignUpdate", ch.ID())
	defer func() { finish(span, err) }()

	if sig, err = ch.SignUpdate(); err != nil {
		return nil, err
	}
	return sig, s.store.SaveBackup(ctx, ch)
}

// Countersign stores the peer signature over the current ledger.
func (s *ChannelService) Countersign(ctx context.Context, ch *channel.Channel, sig sign.Signature) (err error) {
	ctx, span := s.start(ctx, "Countersign", ch.ID())
	defer func() { finish(span, err) }()

	if err = ch.AcceptPeerSignature(sig); err != nil {
		s.metrics.Rejections.WithLabelValues(errorLabel(err)).Inc()
		return err
	}
	log.FromContext(ctx).Info("peer signature accepted", "status", ch.Status())
	return s.store.SaveBackup(ctx, ch)
}

// Settle marks the on-chain settlement window and signs the settlement of the current ledger.
func (s *ChannelService) Settle(ctx context.Context, ch *channel.Channel, endTime *big.Int) (sig sign.Signature, err error) {
	ctx, span := s.start(ctx, "Settle", ch.ID())
	defer func() { finish(span, err) }()

	if sig, err = ch.SignSettlement(); err != nil {
		return nil, err
	}
	if endTime != nil {
		ch.SetSettlementEndTime(endTime)
	}
	return sig, s.store.SaveBackup(ctx, ch)
}

func (s *ChannelService) commit(ctx context.Context, ch *channel.Channel, instructions []channel.Instruction) error {
	state, err := ch.State()
	if err != nil {
		return err
	}
	nonce := state.Nonce()

	if err := channel.PersistInstructions(ctx, s.store, ch.ID(), instructions, nonce); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	batchID, err := s.store.RecordBatch(ctx, ch.ID(), instructions, nonce)
	if err != nil {
		return err
	}
	if err := s.store.SaveBackup(ctx, ch); err != nil {
		return err
	}

	s.metrics.ChannelNonce.WithLabelValues(ch.ID().Hex()).Set(float64(nonce))
	log.FromContext(ctx).Debug("ledger committed", "batch", batchID, "nonce", nonce, "instructions", len(instructions))
	return nil
}
