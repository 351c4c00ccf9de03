package server

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/janpfeifer/screenGo/internal/inference"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"net/http"
	"reflect"
	"strings"
	"sync"
)

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
	Message string       `json:"message,omitempty"`
}

// FieldError describes one invalid field of a request.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// PredictRequest holds the answers of the questionnaire. Answers are pointers to tell a
// missing answer from a 0.
//
// PrefersAlone is optional and defaults to 0. PointsObjects is accepted as an alias of
// PointsToObjects.
type PredictRequest struct {
	EyeContact          *int `json:"eye_contact" binding:"required,oneof=0 1"`
	RespondsName        *int `json:"responds_name" binding:"required,oneof=0 1"`
	PointsToObjects     *int `json:"points_to_objects" binding:"omitempty,oneof=0 1"`
	PointsObjects       *int `json:"points_objects" binding:"omitempty,oneof=0 1"`
	PretendPlay         *int `json:"pretend_play" binding:"required,oneof=0 1"`
	RepetitiveBehaviour *int `json:"repetitive_behaviour" binding:"required,oneof=0 1"`
	SensorySensitivity  *int `json:"sensory_sensitivity" binding:"required,oneof=0 1"`
	PrefersAlone        *int `json:"prefers_alone" binding:"omitempty,oneof=0 1"`
	Gestures            *int `json:"gestures" binding:"required,oneof=0 1"`
	DelayedSpeech       *int `json:"delayed_speech" binding:"required,oneof=0 1"`
	RestrictedInterests *int `json:"restricted_interests" binding:"required,oneof=0 1"`
}

// Record converts the request to a questionnaire.Record. It returns the field errors if
// a required answer is missing.
func (req *PredictRequest) Record() (questionnaire.Record, []FieldError) {
	if req.PointsToObjects == nil {
		req.PointsToObjects = req.PointsObjects
	}
	if req.PointsToObjects == nil {
		return questionnaire.Record{}, []FieldError{{Field: questionnaire.PointsToObjects.String(), Rule: "required"}}
	}
	var record questionnaire.Record
	for field, answer := range map[questionnaire.Field]*int{
		questionnaire.EyeContact:          req.EyeContact,
		questionnaire.RespondsName:        req.RespondsName,
		questionnaire.PointsToObjects:     req.PointsToObjects,
		questionnaire.PretendPlay:         req.PretendPlay,
		questionnaire.RepetitiveBehaviour: req.RepetitiveBehaviour,
		questionnaire.SensorySensitivity:  req.SensorySensitivity,
		questionnaire.PrefersAlone:        req.PrefersAlone,
		questionnaire.Gestures:            req.Gestures,
		questionnaire.DelayedSpeech:       req.DelayedSpeech,
		questionnaire.RestrictedInterests: req.RestrictedInterests,
	} {
		if answer != nil {
			record[field] = *answer
		}
	}
	return record, nil
}

// PredictResponse is the result of POST /predict.
type PredictResponse struct {
	Probability    float64  `json:"probability"`
	Label          int      `json:"label"`
	RiskLevel      string   `json:"risk_level"`
	Explanation    string   `json:"explanation"`
	Recommendation string   `json:"recommendation"`
	TopFeatures    []string `json:"top_features"`
}

// Question of the questionnaire, as returned by GET /questions.
type Question struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

var registerOnce sync.Once

// registerJSONFieldNames makes validation errors report the JSON names of the fields.
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func (s *Server) status() string {
	if s.service.Available() {
		return "ok"
	}
	return "unavailable"
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       s.status(),
		"model_loaded": s.service.Available(),
	})
}

func (s *Server) health(c *gin.Context) {
	code := http.StatusOK
	if !s.service.Available() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": s.status()})
}

func (s *Server) questions(c *gin.Context) {
	questions := make([]Question, 0, len(questionnaire.Specs))
	for _, spec := range questionnaire.Specs {
		questions = append(questions, Question{Field: spec.Name, Text: spec.Text})
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (s *Server) predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	record, fieldErrs := req.Record()
	if fieldErrs != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: fieldErrs})
		return
	}
	prediction, err := s.service.Predict(c.Request.Context(), record)
	if err != nil {
		s.predictionError(c, err)
		return
	}
	topFeatures := prediction.TopFeatures
	if topFeatures == nil {
		topFeatures = []string{}
	}
	c.JSON(http.StatusOK, PredictResponse{
		Probability:    prediction.Probability,
		Label:          prediction.Label,
		RiskLevel:      string(prediction.Tier),
		Explanation:    prediction.Explanation,
		Recommendation: prediction.Recommendation,
		TopFeatures:    topFeatures,
	})
}

// badRequest reports binding errors: validation errors are listed per field, other errors
// (malformed JSON, wrong types) are reported as a message.
func badRequest(c *gin.Context, err error) {
	resp := ErrorResponse{Error: "invalid request"}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fe := range validationErrs {
			resp.Details = append(resp.Details, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	} else {
		resp.Message = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func (s *Server) predictionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inference.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "model not available"})
	case errors.Is(err, inference.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
	default:
		klog.Errorf("POST /predict failed: %+v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) metrics(c *gin.Context) {
	record, err := s.service.Metrics()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "metrics not available"})
		return
	}
	c.JSON(http.StatusOK, record)
}
