package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/poll"
)

// InputEncrypter produces encrypted choices and their input proofs.
type InputEncrypter interface {
	EncryptInput(contract, user common.Address, value uint64, bound uint8) (fhe.Handle, []byte, error)
}

// PublicDecrypter answers public decryption requests with a KMS proof.
type PublicDecrypter interface {
	PublicDecrypt(ctx context.Context, handles []fhe.Handle) (*kms.Decryption, error)
}

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host   string
	Port   int
	Engine *poll.Engine
	// ChainID binds the signed write requests to a chain.
	ChainID           uint64
	KMSSigners        []common.Address
	KMSThreshold      int
	DecryptionAddress common.Address
	// Optional: the relayer endpoints are registered only when both are set.
	Inputs    InputEncrypter
	Decrypter PublicDecrypter
}

// API type represents the API HTTP server of a poll node.
type API struct {
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
	engine   *poll.Engine
	info     Info

	inputs    InputEncrypter
	decrypter PublicDecrypter
}

// New creates a new API instance with the given configuration and starts
// serving it in the background.
func New(conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	a.listener, err = net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", a.listener.Addr().String())
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// newAPI builds the router without listening, tests serve it with httptest.
func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Engine == nil {
		return nil, fmt.Errorf("missing poll engine")
	}
	a := &API{
		engine:    conf.Engine,
		inputs:    conf.Inputs,
		decrypter: conf.Decrypter,
		info: Info{
			ChainID:           conf.ChainID,
			EngineAddress:     conf.Engine.Address(),
			ProtocolID:        conf.Engine.ProtocolID(),
			KMSSigners:        conf.KMSSigners,
			KMSThreshold:      conf.KMSThreshold,
			DecryptionAddress: conf.DecryptionAddress,
			Relayer:           conf.Inputs != nil && conf.Decrypter != nil,
		},
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Shutdown gracefully stops the HTTP server.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	get := func(endpoint string, h http.HandlerFunc) {
		log.Debugw("register handler", "endpoint", endpoint, "method", "GET")
		a.router.Get(endpoint, h)
	}
	post := func(endpoint string, h http.HandlerFunc) {
		log.Debugw("register handler", "endpoint", endpoint, "method", "POST")
		a.router.Post(endpoint, h)
	}

	get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	get(InfoEndpoint, a.nodeInfo)

	get(PollsEndpoint, a.polls)
	post(PollsEndpoint, a.newPoll)
	get(PollEndpoint, a.poll)
	get(PollOptionEndpoint, a.pollOption)
	get(EncryptedTallyEndpoint, a.encryptedTally)
	get(PostedTallyEndpoint, a.postedTally)
	get(VoterEndpoint, a.voterStatus)

	post(VotesEndpoint, a.newVote)
	post(EndPollEndpoint, a.endPoll)
	post(ResultsEndpoint, a.publishResults)

	if a.info.Relayer {
		post(RelayerInputsEndpoint, a.encryptInput)
		post(RelayerDecryptEndpoint, a.publicDecrypt)
	}
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
