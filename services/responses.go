package services

import "github.com/caio-sobreiro/dicomnet/types"

// noDataSetPresent is the Command Data Set Type value meaning no dataset
// follows the command set, Part 7 Annex E.1.1.
const noDataSetPresent = 0x0101

// datasetPresent is any Command Data Set Type value other than
// noDataSetPresent; 0x0000 is the conventional choice when a dataset
// follows.
const datasetPresent = 0x0000

// ResponseBuilder provides convenient methods for creating standard DIMSE
// response messages. The builders populate MessageIDBeingRespondedTo and
// AffectedSOPClassUID from the request so callers only need to supply the
// status and whatever is specific to that response.
type ResponseBuilder struct {
	request *types.Message
}

// NewResponseBuilder creates a response builder for the given request.
func NewResponseBuilder(request *types.Message) *ResponseBuilder {
	return &ResponseBuilder{request: request}
}

// CEchoResponse creates a C-ECHO-RSP message, Part 7 §9.3.5.
func (b *ResponseBuilder) CEchoResponse(status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.CEchoRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		CommandDataSetType:        noDataSetPresent,
		Status:                    status,
	}
}

// CFindResponse creates a C-FIND-RSP message, Part 7 §9.3.2.1.2. Set
// status=types.StatusPending and hasDataset=true for an intermediate match;
// status=types.StatusSuccess and hasDataset=false for the final response.
func (b *ResponseBuilder) CFindResponse(status uint16, hasDataset bool) *types.Message {
	datasetType := uint16(noDataSetPresent)
	if hasDataset {
		datasetType = datasetPresent
	}
	return &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		CommandDataSetType:        datasetType,
		Status:                    status,
	}
}

// CMoveResponse creates a C-MOVE-RSP message with sub-operation counts,
// Part 7 §9.3.4.1.2. Any of completed/failed/warning/remaining may be nil.
func (b *ResponseBuilder) CMoveResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	return &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      b.request.MessageID,
		AffectedSOPClassUID:            b.request.AffectedSOPClassUID,
		CommandDataSetType:             noDataSetPresent,
		Status:                         status,
		NumberOfCompletedSuboperations: completed,
		NumberOfFailedSuboperations:    failed,
		NumberOfWarningSuboperations:   warning,
		NumberOfRemainingSuboperations: remaining,
	}
}

// CGetResponse creates a C-GET-RSP message with sub-operation counts,
// Part 7 §9.3.3.1.2. Shares the same counter fields as C-MOVE-RSP.
func (b *ResponseBuilder) CGetResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	return &types.Message{
		CommandField:                   types.CGetRSP,
		MessageIDBeingRespondedTo:      b.request.MessageID,
		AffectedSOPClassUID:            b.request.AffectedSOPClassUID,
		CommandDataSetType:             noDataSetPresent,
		Status:                         status,
		NumberOfCompletedSuboperations: completed,
		NumberOfFailedSuboperations:    failed,
		NumberOfWarningSuboperations:   warning,
		NumberOfRemainingSuboperations: remaining,
	}
}

// CStoreResponse creates a C-STORE-RSP message, Part 7 §9.3.1.1.2.
// sopInstanceUID defaults to the request's Affected SOP Instance UID when
// empty.
func (b *ResponseBuilder) CStoreResponse(status uint16, sopInstanceUID string) *types.Message {
	if sopInstanceUID == "" {
		sopInstanceUID = b.request.AffectedSOPInstanceUID
	}
	return &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    sopInstanceUID,
		CommandDataSetType:        noDataSetPresent,
		Status:                    status,
	}
}

// nServiceResponse builds the common shape shared by every N-service
// response: same command/SOP class/instance as the request, no dataset.
func (b *ResponseBuilder) nServiceResponse(commandField, status uint16) *types.Message {
	return &types.Message{
		CommandField:              commandField,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    b.request.AffectedSOPInstanceUID,
		CommandDataSetType:        noDataSetPresent,
		Status:                    status,
	}
}

// NEventReportResponse creates an N-EVENT-REPORT-RSP message, Part 7 §10.3.2.
func (b *ResponseBuilder) NEventReportResponse(status uint16) *types.Message {
	return b.nServiceResponse(types.NEventReportRSP, status)
}

// NGetResponse creates an N-GET-RSP message, Part 7 §10.1.2.2. The
// attribute list requested is carried in the response dataset, not here.
func (b *ResponseBuilder) NGetResponse(status uint16) *types.Message {
	return b.nServiceResponse(types.NGetRSP, status)
}

// NSetResponse creates an N-SET-RSP message, Part 7 §10.1.3.2.
func (b *ResponseBuilder) NSetResponse(status uint16) *types.Message {
	return b.nServiceResponse(types.NSetRSP, status)
}

// NActionResponse creates an N-ACTION-RSP message, Part 7 §10.1.4.2.
func (b *ResponseBuilder) NActionResponse(status uint16) *types.Message {
	return b.nServiceResponse(types.NActionRSP, status)
}

// NCreateResponse creates an N-CREATE-RSP message, Part 7 §10.1.5.2.
func (b *ResponseBuilder) NCreateResponse(status uint16) *types.Message {
	return b.nServiceResponse(types.NCreateRSP, status)
}

// NDeleteResponse creates an N-DELETE-RSP message, Part 7 §10.1.6.2.
func (b *ResponseBuilder) NDeleteResponse(status uint16) *types.Message {
	return b.nServiceResponse(types.NDeleteRSP, status)
}

// Helper functions for creating responses without a builder instance.

// NewCEchoResponse creates a C-ECHO-RSP message from a request.
func NewCEchoResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CEchoResponse(status)
}

// NewCFindPendingResponse creates a pending C-FIND-RSP message (with dataset).
func NewCFindPendingResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusPending, true)
}

// NewCFindSuccessResponse creates a final success C-FIND-RSP message (no dataset).
func NewCFindSuccessResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusSuccess, false)
}

// NewCFindErrorResponse creates an error C-FIND-RSP message.
func NewCFindErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CFindResponse(status, false)
}

// NewCMoveSuccessResponse creates a final success C-MOVE-RSP message with sub-operation counts.
func NewCMoveSuccessResponse(request *types.Message, completed, failed, warning uint16) *types.Message {
	remaining := uint16(0)
	return NewResponseBuilder(request).CMoveResponse(types.StatusSuccess, &completed, &failed, &warning, &remaining)
}

// NewCMovePendingResponse creates a pending C-MOVE-RSP message with sub-operation counts.
func NewCMovePendingResponse(request *types.Message, completed, failed, warning, remaining uint16) *types.Message {
	return NewResponseBuilder(request).CMoveResponse(types.StatusPending, &completed, &failed, &warning, &remaining)
}

// NewCMoveErrorResponse creates an error C-MOVE-RSP message.
func NewCMoveErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CMoveResponse(status, nil, nil, nil, nil)
}

// NewCGetSuccessResponse creates a final success C-GET-RSP message with sub-operation counts.
func NewCGetSuccessResponse(request *types.Message, completed, failed, warning uint16) *types.Message {
	remaining := uint16(0)
	return NewResponseBuilder(request).CGetResponse(types.StatusSuccess, &completed, &failed, &warning, &remaining)
}

// NewCGetPendingResponse creates a pending C-GET-RSP message with sub-operation counts.
func NewCGetPendingResponse(request *types.Message, completed, failed, warning, remaining uint16) *types.Message {
	return NewResponseBuilder(request).CGetResponse(types.StatusPending, &completed, &failed, &warning, &remaining)
}

// NewCGetErrorResponse creates an error C-GET-RSP message.
func NewCGetErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CGetResponse(status, nil, nil, nil, nil)
}

// NewCStoreResponse creates a C-STORE-RSP message.
func NewCStoreResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CStoreResponse(status, "")
}
