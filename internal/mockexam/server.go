package mockexam

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/response"
)

// Server bundles the mock service's configuration, state and logger.
type Server struct {
	cfg   *config.Config
	state *State
	log   zerolog.Logger
}

// NewServer creates a server with freshly seeded state.
func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	state, err := NewState(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:   cfg,
		state: state,
		log:   log.With().Str("component", "mockexam").Logger(),
	}, nil
}

// ExamID returns the seeded exam id so the runner can print it at startup.
func (s *Server) ExamID() string {
	return s.state.exam.ID.String()
}

// Router configures all route groups with appropriate middlewares.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.GinMode)
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth/login", s.Login)

	authed := router.Group("/")
	authed.Use(requireStudentJWT(s.cfg))
	{
		authed.GET("/exams/:exam_id", s.GetExam)
		authed.GET("/exams/:exam_id/questions", s.GetQuestions)
		authed.GET("/exams/:exam_id/registration", s.GetRegistration)
		authed.PUT("/exam-registrations/:registration_id", s.UpdateRegistration)
		authed.POST("/submissions", s.CreateSubmission)
	}

	return router
}
