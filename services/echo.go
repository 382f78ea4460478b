package services

import (
	"context"

	"github.com/caio-sobreiro/dicomnet/internal/dlog"
	"github.com/caio-sobreiro/dicomnet/types"
)

// EchoService handles C-ECHO verification requests, Part 7 §9.1.5. C-ECHO
// is the DICOM equivalent of a ping: it carries no dataset and succeeds as
// long as the association itself is up, so the service has no state or
// external dependencies.
type EchoService struct {
	logger dlog.Logger
}

// NewEchoService creates a C-ECHO service instance. logger may be nil, in
// which case dlog.Default() is used.
func NewEchoService(logger dlog.Logger) *EchoService {
	if logger == nil {
		logger = dlog.Default()
	}
	return &EchoService{logger: logger}
}

// HandleDIMSE implements interfaces.ServiceHandler.
func (s *EchoService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	s.logger.Debug("C-ECHO request", "message_id", msg.MessageID, "affected_sop_class", msg.AffectedSOPClassUID)
	response := NewResponseBuilder(msg).CEchoResponse(types.StatusSuccess)
	return response, nil, nil
}

// HealthCheck always reports healthy: C-ECHO has no external dependencies
// to fail.
func (s *EchoService) HealthCheck(ctx context.Context) error {
	return nil
}
