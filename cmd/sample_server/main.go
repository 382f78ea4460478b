// Command sample_server runs a minimal Storage SCP: it accepts
// associations, answers C-ECHO, and stores whatever C-STORE instances it
// receives in memory for inspection. It exists to exercise aentity,
// services and dimse end to end against a real TCP peer, not as a
// production archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/caio-sobreiro/dicomnet/acse"
	"github.com/caio-sobreiro/dicomnet/aentity"
	"github.com/caio-sobreiro/dicomnet/association"
	"github.com/caio-sobreiro/dicomnet/internal/dlog"
	"github.com/caio-sobreiro/dicomnet/services"
	"github.com/caio-sobreiro/dicomnet/types"
)

// storedInstance is one C-STORE'd dataset, kept in memory only for the life
// of the process.
type storedInstance struct {
	sopClassUID       string
	sopInstanceUID    string
	transferSyntaxUID string
	data              []byte
}

// storeHandler implements interfaces.ServiceHandler for C-STORE-RQ: it keeps
// the raw encoded data set bytes exactly as received, alongside the command
// set fields that identify it.
type storeHandler struct {
	logger dlog.Logger

	mu        sync.Mutex
	instances map[string]*storedInstance
}

func newStoreHandler(logger dlog.Logger) *storeHandler {
	return &storeHandler{logger: logger, instances: make(map[string]*storedInstance)}
}

func (h *storeHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	logger := h.logger.With("sop_class", msg.AffectedSOPClassUID, "sop_instance", msg.AffectedSOPInstanceUID)
	logger.Info("received C-STORE instance", "transfer_syntax", msg.TransferSyntaxUID, "bytes", len(data))

	h.mu.Lock()
	h.instances[msg.AffectedSOPInstanceUID] = &storedInstance{
		sopClassUID:       msg.AffectedSOPClassUID,
		sopInstanceUID:    msg.AffectedSOPInstanceUID,
		transferSyntaxUID: msg.TransferSyntaxUID,
		data:              data,
	}
	count := len(h.instances)
	h.mu.Unlock()

	logger.Info("instance stored", "total_instances", count)
	return services.NewResponseBuilder(msg).CStoreResponse(types.StatusSuccess, ""), nil, nil
}

func main() {
	port := flag.Int("port", 4242, "TCP port to listen on")
	aeTitle := flag.String("ae", "SAMPLE_SCP", "Application Entity title to answer associations as")
	flag.Parse()

	logger := dlog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entity := aentity.New(*aeTitle,
		aentity.WithLogger(logger),
		aentity.WithSupportedAbstractSyntax(acse.SupportedAbstractSyntax{
			AbstractSyntax:   types.VerificationSOPClass,
			TransferSyntaxes: []string{types.ImplicitVRLittleEndian, types.ExplicitVRLittleEndian},
		}),
		aentity.WithSupportedAbstractSyntax(acse.SupportedAbstractSyntax{
			AbstractSyntax:   types.CTImageStorage,
			TransferSyntaxes: []string{types.ImplicitVRLittleEndian, types.ExplicitVRLittleEndian},
			Role:             acse.Role{SCP: true},
		}),
	)

	registry := services.NewRegistry(logger)
	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService(logger))
	registry.RegisterHandler(types.CStoreRQ, newStoreHandler(logger))

	address := fmt.Sprintf(":%d", *port)
	err := entity.StartServer(ctx, address, func(ctx context.Context, assoc *association.Association) {
		defer assoc.Close(ctx)
		registry.Serve(ctx, assoc)
	})

	switch {
	case err == nil:
		logger.Info("sample server shut down")
	case ctx.Err() != nil:
		logger.Info("sample server stopped", "reason", ctx.Err())
	default:
		logger.Error("sample server terminated unexpectedly", "error", err)
		os.Exit(1)
	}
}
