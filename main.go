package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/cloudgroundcontrol/chat-voice/pkg/capture"
	"github.com/cloudgroundcontrol/chat-voice/pkg/capture/static"
	"github.com/cloudgroundcontrol/chat-voice/pkg/credential"
	"github.com/cloudgroundcontrol/chat-voice/pkg/http/rest"
	"github.com/cloudgroundcontrol/chat-voice/pkg/recorder"
	"github.com/cloudgroundcontrol/chat-voice/pkg/transcribe"
	"github.com/cloudgroundcontrol/chat-voice/pkg/upload"
	"github.com/cloudgroundcontrol/chat-voice/pkg/voice"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

func getEnvOrFail(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("%s not set", key)
	}
	return val
}

func main() {
	// Values already in the environment win over the .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal(err)
	}

	// Get env variables
	port := getEnvOrFail("APP_PORT")
	transcribeURL := os.Getenv("TRANSCRIBE_URL")
	logLevel := os.Getenv("LOG_LEVEL")
	spoolDir := os.Getenv("SPOOL_DIR")

	// Get log verbosity
	var verbosity log.Lvl
	switch strings.ToLower(logLevel) {
	case "debug":
		verbosity = log.DEBUG
	case "info":
		verbosity = log.INFO
	case "warn":
		verbosity = log.WARN
	case "error":
		fallthrough
	default:
		verbosity = log.ERROR
	}
	log.SetLevel(verbosity)
	log.SetHeader("(${short_file}:${line}) ${time_rfc3339} ${level}: ")

	// Pick the capture device
	var device capture.Device
	switch strings.ToLower(os.Getenv("CAPTURE_DEVICE")) {
	case "static":
		device = static.NewDevice()
	case "exec", "":
		device = capture.NewExecDevice(strings.Fields(os.Getenv("CAPTURE_COMMAND"))...)
	default:
		log.Fatalf("unknown capture device: %s", os.Getenv("CAPTURE_DEVICE"))
	}

	// Log recorder transitions
	opts := []recorder.Option{
		recorder.WithHooks(&recorder.RecorderHooks{
			OnStateChange: func(s recorder.State) {
				log.Debugf("recorder state changed | state: %s", s)
			},
		}),
	}
	// Spool recordings to disk if a directory is given. Value of 0755 matches
	// the permissions a web server needs on its working directories.
	if spoolDir != "" {
		stat, err := os.Stat(spoolDir)
		if os.IsNotExist(err) {
			err = os.MkdirAll(spoolDir, 0755)
		} else if err == nil && !stat.IsDir() {
			log.Fatalf("%s is not a directory", spoolDir)
		}
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, recorder.WithSpoolDir(spoolDir))
	}
	rec := recorder.New(device, opts...)
	if !rec.Supported() {
		log.Warnf("audio capture not available | device: %T", device)
	}

	// Credentials: a token file refreshed by the login flow, then a fixed token
	var sources []credential.Source
	if path := os.Getenv("AUTH_TOKEN_FILE"); path != "" {
		sources = append(sources, credential.File(path))
	}
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		sources = append(sources, credential.Static(token))
	}

	// Initialise voice service
	service := voice.NewService(rec, transcribe.NewClient(transcribeURL), credential.Chain(sources...), voice.Hooks{
		OnTranscript: func(text string) {
			log.Debugf("transcript ready | chars: %d", len(text))
		},
	})

	// Create S3 uploader only if the environment variables are not empty
	s3Region := os.Getenv("S3_REGION")
	s3Bucket := os.Getenv("S3_BUCKET")
	if s3Region != "" && s3Bucket != "" {
		uploader, err := upload.NewS3Uploader(context.Background(), upload.S3Config{
			Region:      s3Region,
			Bucket:      s3Bucket,
			Directory:   os.Getenv("S3_DIRECTORY"),
			ContentType: recorder.MimeType,
		})
		if err != nil {
			log.Fatal(err)
		}
		service.SetUploader(uploader)
	}

	// Initialise recording controller
	controller := rest.NewRecordingController(service)

	// Initialise server
	e := echo.New()

	// Attach middlewares
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "(${host}) ${time_rfc3339} ${level}: ${method} ${uri} ${status} ${error}\n",
	}))

	// Attach handlers
	e.GET("/health-check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/recordings/state", controller.GetState)
	e.POST("/recordings/start", controller.StartRecording)
	e.POST("/recordings/stop", controller.StopRecording)

	// Start server
	e.Logger.Fatal(e.Start(":" + port))
}
