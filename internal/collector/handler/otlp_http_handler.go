package handler

import (
	"io"
	"mime"
	"net/http"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	contentTypeProtobuf = "application/x-protobuf"
	contentTypeJSON     = "application/json"

	maxRequestBytes = 16 << 20
)

// OTLPTracesHandler implements the OTLP/HTTP traces endpoint on top of a
// TraceServiceServer. The response uses the encoding of the request.
// @Summary Receive an OTLP export request
// @Accept application/x-protobuf,json
// @Produce application/x-protobuf,json
// @Success 200 {object} ExportTraceServiceResponse
// @Failure 400 {object} ErrorMessage "Undecodable body"
// @Failure 415 {object} ErrorMessage "Unsupported content type"
// @Router /v1/traces [post]
func OTLPTracesHandler(traceServer protoTrace.TraceServiceServer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || (mediaType != contentTypeProtobuf && mediaType != contentTypeJSON) {
			HttpError(w, "Unsupported content type", http.StatusUnsupportedMediaType, logger)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			logger.Error("Error encountered when reading request body", zap.Error(err))
			HttpError(w, "Unable to read request body", http.StatusBadRequest, logger)
			return
		}

		req := &protoTrace.ExportTraceServiceRequest{}
		if mediaType == contentTypeJSON {
			err = protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(body, req)
		} else {
			err = proto.Unmarshal(body, req)
		}
		if err != nil {
			logger.Error("Error encountered when decoding export request", zap.Error(err))
			HttpError(w, "Invalid export request payload", http.StatusBadRequest, logger)
			return
		}

		res, err := traceServer.Export(r.Context(), req)
		if err != nil {
			logger.Error("Error encountered during export", zap.Error(err))
			HttpError(w, "Export failed", http.StatusInternalServerError, logger)
			return
		}

		var out []byte
		if mediaType == contentTypeJSON {
			out, err = protojson.Marshal(res)
		} else {
			out, err = proto.Marshal(res)
		}
		if err != nil {
			logger.Error("Error encountered when encoding export response", zap.Error(err))
			HttpError(w, "Export failed", http.StatusInternalServerError, logger)
			return
		}
		w.Header().Set("Content-Type", mediaType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out); err != nil {
			logger.Error("Error encountered when writing export response", zap.Error(err))
		}
	}
}
