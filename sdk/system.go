// Package sdk wires the resolvers, the record store and the broadcaster into
// a System exposing the two things a client can do: resolve how to pay a
// recipient, and record (and announce) a high five.
package sdk

import (
	"context"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/bip353"
	"github.com/highfives-app/highfives/broadcast"
	"github.com/highfives-app/highfives/lnurl"
	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/profile"
	"github.com/highfives-app/highfives/resolve"
	"github.com/highfives-app/highfives/sdk/cache"
	cache_memory "github.com/highfives-app/highfives/sdk/cache/memory"
	"github.com/highfives-app/highfives/store"
	"github.com/highfives-app/highfives/store/slicestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

// System is what an application uses to serve high fives. Usually there is a
// single one per process.
//
// The resolvers and the broadcaster are exposed so their fields can be tuned
// after NewSystem; the dispatcher holds the same pointers.
type System struct {
	DNS       *bip353.Resolver
	Lightning *lnurl.Resolver
	Profiles  *profile.Resolver
	Resolver  *resolve.Dispatcher

	// Store must already be initialized when given with WithStore. The
	// in-memory default is initialized by NewSystem.
	Store store.Store

	// Broadcaster and Worker are nil when no secret key was given, in which
	// case acknowledgments are only stored.
	Broadcaster *broadcast.Broadcaster
	Worker      *broadcast.Worker

	// NameCache keeps the profile names looked up by Submit.
	NameCache cache.Cache32[string]

	// NameTimeout bounds the profile name lookups done by Submit.
	NameTimeout time.Duration

	Logger *zerolog.Logger

	secretKey       *nostr.SecretKey
	broadcastRelays []string
	profileRelays   []string
	nameserver      string
	queueSize       int
	timeouts        Timeouts
	relayOptions    nostr.RelayOptions
	registerer      prometheus.Registerer

	stopWorker context.CancelFunc
}

// Timeouts overrides the default wall-clock limit of each upstream. Zero
// values keep the defaults.
type Timeouts struct {
	DNS       time.Duration
	Lightning time.Duration
	Profile   time.Duration
	Publish   time.Duration
}

// SystemModifier is a function that modifies a System instance.
// It's used with NewSystem to configure the system during creation.
type SystemModifier func(sys *System)

// WithStore replaces the in-memory store. The store must be initialized.
func WithStore(s store.Store) SystemModifier {
	return func(sys *System) { sys.Store = s }
}

// WithSecretKey enables broadcasting, notes are signed with sk.
func WithSecretKey(sk nostr.SecretKey) SystemModifier {
	return func(sys *System) { sys.secretKey = &sk }
}

func WithBroadcastRelays(urls ...string) SystemModifier {
	return func(sys *System) { sys.broadcastRelays = urls }
}

func WithProfileRelays(urls ...string) SystemModifier {
	return func(sys *System) { sys.profileRelays = urls }
}

// WithNameserver sets the host:port BIP-353 queries are sent to.
func WithNameserver(addr string) SystemModifier {
	return func(sys *System) { sys.nameserver = addr }
}

// WithQueueSize sets how many acknowledgments can wait to be broadcast
// before new ones start being dropped.
func WithQueueSize(n int) SystemModifier {
	return func(sys *System) { sys.queueSize = n }
}

func WithTimeouts(t Timeouts) SystemModifier {
	return func(sys *System) { sys.timeouts = t }
}

func WithRelayOptions(opts nostr.RelayOptions) SystemModifier {
	return func(sys *System) { sys.relayOptions = opts }
}

// WithRegisterer registers resolution and broadcast metrics on reg.
func WithRegisterer(reg prometheus.Registerer) SystemModifier {
	return func(sys *System) { sys.registerer = reg }
}

func WithLogger(logger *zerolog.Logger) SystemModifier {
	return func(sys *System) { sys.Logger = logger }
}

// NewSystem creates a System with default configuration, which can be
// customized using the provided modifiers. When a secret key is given a
// broadcast worker is started and keeps running until Close.
func NewSystem(mods ...SystemModifier) *System {
	sys := &System{
		Logger:      &nopLogger,
		NameTimeout: 3 * time.Second,
		queueSize:   256,
	}
	for _, mod := range mods {
		mod(sys)
	}

	log := sys.logger()
	component := func(name string) *zerolog.Logger {
		l := log.With().Str("component", name).Logger()
		return &l
	}

	sys.DNS = bip353.New(sys.nameserver)
	sys.DNS.Logger = component("bip353")
	if sys.timeouts.DNS > 0 {
		sys.DNS.Timeout = sys.timeouts.DNS
	}

	sys.Lightning = lnurl.New()
	sys.Lightning.Logger = component("lnurl")
	if sys.timeouts.Lightning > 0 {
		sys.Lightning.Timeout = sys.timeouts.Lightning
	}

	sys.Profiles = profile.New(sys.profileRelays)
	sys.Profiles.Logger = component("profile")
	sys.Profiles.RelayOptions = sys.relayOptions
	if sys.timeouts.Profile > 0 {
		sys.Profiles.Timeout = sys.timeouts.Profile
	}

	sys.Resolver = resolve.New(sys.DNS, sys.Lightning, sys.Profiles)
	sys.Resolver.Logger = component("resolve")
	if sys.registerer != nil {
		sys.Resolver.Metrics = resolve.NewMetrics(sys.registerer)
	}

	if sys.Store == nil {
		ss := &slicestore.SliceStore{}
		ss.Init()
		sys.Store = ss
	}

	if sys.NameCache == nil {
		sys.NameCache = cache_memory.New[string](8000, 10*time.Minute)
	}

	if sys.secretKey != nil {
		sys.startBroadcasting(*sys.secretKey, component("broadcast"))
	}

	return sys
}

func (sys *System) startBroadcasting(sk nostr.SecretKey, logger *zerolog.Logger) {
	sys.Broadcaster = broadcast.New(sk, sys.broadcastRelays)
	sys.Broadcaster.Logger = logger
	sys.Broadcaster.RelayOptions = sys.relayOptions
	if sys.timeouts.Publish > 0 {
		sys.Broadcaster.Timeout = sys.timeouts.Publish
	}

	sys.Worker = broadcast.NewWorker(sys.Broadcaster, sys.queueSize)
	sys.Worker.Logger = logger
	sys.Worker.OnPublished = sys.linkEvent

	if sys.registerer != nil {
		metrics := broadcast.NewMetrics(sys.registerer)
		sys.Broadcaster.Metrics = metrics
		sys.Worker.Metrics = metrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	sys.stopWorker = cancel
	go sys.Worker.Run(ctx)
}

// linkEvent attaches the id of a published note to its acknowledgment.
func (sys *System) linkEvent(ack highfives.Acknowledgment, eventID string) {
	if err := sys.Store.AttachEventID(ack.ID, eventID); err != nil {
		sys.logger().Warn().Err(err).Str("ack", ack.ID).Str("event", eventID).
			Msg("failed to link acknowledgment to its event")
	}
}

// PublicKey is the key notes are signed with, if broadcasting is enabled.
func (sys *System) PublicKey() (nostr.PubKey, bool) {
	if sys.secretKey == nil {
		return nostr.PubKey{}, false
	}
	return nostr.GetPublicKey(*sys.secretKey), true
}

// Close stops the broadcast worker, abandoning whatever is still queued, and
// closes the store.
func (sys *System) Close() {
	if sys.stopWorker != nil {
		sys.stopWorker()
		<-sys.Worker.Done()
	}
	if closer, ok := sys.NameCache.(interface{ Close() }); ok {
		closer.Close()
	}
	sys.Store.Close()
}

func (sys *System) logger() *zerolog.Logger {
	if sys.Logger == nil {
		return &nopLogger
	}
	return sys.Logger
}
