package api

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/mrwolf/geolocator/internal/models"
)

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Geolocator API"
	r.Spec.Info.Version = models.Version
	r.Spec.Info.WithDescription("Guesses where a photo was taken and calibrates the model's confidence.")

	// GET /health
	getHealth, _ := r.NewOperationContext(http.MethodGet, "/health")
	getHealth.SetSummary("Health check")
	getHealth.SetDescription("Reports model, database and report directory status.")
	getHealth.AddRespStructure(models.HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getHealth)

	// POST /api/v1/analyze
	postAnalyze, _ := r.NewOperationContext(http.MethodPost, "/api/v1/analyze")
	postAnalyze.SetSummary("Analyze a photo")
	postAnalyze.SetDescription("Uploads one image as multipart field image. Requires Bearer token.")
	postAnalyze.AddReqStructure(models.AnalyzeForm{})
	postAnalyze.AddRespStructure(models.Analysis{}, openapi.WithHTTPStatus(http.StatusOK))
	postAnalyze.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postAnalyze.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	postAnalyze.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusRequestEntityTooLarge))
	postAnalyze.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnsupportedMediaType))
	postAnalyze.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	postAnalyze.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	postAnalyze.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postAnalyze)

	// POST /api/v1/validate
	postValidate, _ := r.NewOperationContext(http.MethodPost, "/api/v1/validate")
	postValidate.SetSummary("Calibrate a saved reply")
	postValidate.SetDescription("Runs extraction and calibration over a raw model reply without calling the model.")
	postValidate.AddReqStructure(models.ValidateRequest{})
	postValidate.AddRespStructure(models.Analysis{}, openapi.WithHTTPStatus(http.StatusOK))
	postValidate.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postValidate.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postValidate)

	// GET /api/v1/analyses
	listAnalyses, _ := r.NewOperationContext(http.MethodGet, "/api/v1/analyses")
	listAnalyses.SetSummary("List analyses")
	listAnalyses.SetDescription("Returns the caller's analyses, newest first.")
	listAnalyses.AddReqStructure(models.HistoryQuery{})
	listAnalyses.AddRespStructure(models.AnalysesResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	listAnalyses.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(listAnalyses)

	// GET /api/v1/analyses/{id}
	getAnalysis, _ := r.NewOperationContext(http.MethodGet, "/api/v1/analyses/{id}")
	getAnalysis.SetSummary("Get analysis")
	getAnalysis.AddReqStructure(models.AnalysisPath{})
	getAnalysis.AddRespStructure(models.Analysis{}, openapi.WithHTTPStatus(http.StatusOK))
	getAnalysis.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getAnalysis)

	// DELETE /api/v1/analyses/{id}
	deleteAnalysis, _ := r.NewOperationContext(http.MethodDelete, "/api/v1/analyses/{id}")
	deleteAnalysis.SetSummary("Delete analysis")
	deleteAnalysis.AddReqStructure(models.AnalysisPath{})
	deleteAnalysis.AddRespStructure(models.DeleteResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	deleteAnalysis.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteAnalysis)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
