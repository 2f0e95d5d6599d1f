package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/practicals/internal/client"
	"github.com/pavelanni/practicals/internal/docx"
	"github.com/pavelanni/practicals/internal/generator"
	"github.com/pavelanni/practicals/internal/handler"
	appI18n "github.com/pavelanni/practicals/internal/i18n"
	"github.com/pavelanni/practicals/internal/model"
	"github.com/pavelanni/practicals/internal/preview"
	"github.com/pavelanni/practicals/internal/session"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "practicals",
		Short: "Lab-record document generator",
	}

	serve := serveCmd()
	root.AddCommand(serve, renderCmd(), exportCmd(), previewCmd(), inspectCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `practicals --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP generation service",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.Int64("max-upload-bytes", 32<<20, "Maximum size of one submission (0 = unlimited)")
	f.Bool("fix-zip", true, "Write archives without zip data descriptors")
	f.Int("thumb-width", 600, "Maximum width of data URI preview images")
	f.Int("thumb-height", 400, "Maximum height of data URI preview images")
	f.Int("max-refs", preview.DefaultCapacity, "Maximum live preview image references")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /practicals)")
	addLogFlags(cmd)
	return cmd
}

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Generate a document from a session file",
		RunE:  runRender,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "", "Session YAML file (required)")
	f.StringP("output", "o", docx.DefaultFilename, "Output file path (- for stdout)")
	f.Bool("fix-zip", true, "Write archives without zip data descriptors")
	f.Bool("base64", false, "Write the document as base64 text")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session file through the generation service",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "", "Session YAML file (required)")
	f.StringP("server", "s", "", "Generation service base URL (empty = in process)")
	f.StringP("output", "o", ".", "Directory receiving practicals.docx")
	f.Bool("overwrite", false, "Replace an existing practicals.docx")
	f.Duration("timeout", 0, "HTTP round trip limit (0 = none)")
	f.Bool("fix-zip", true, "Write archives without zip data descriptors (in process only)")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a session file as a self-contained XHTML page",
		RunE:  runPreview,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "", "Session YAML file (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.StringP("lang", "l", "en", "Page language (en, ru)")
	f.Int("thumb-width", 600, "Maximum width of preview images")
	f.Int("thumb-height", 400, "Maximum height of preview images")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the outline of a generated document as YAML",
		RunE:  runInspect,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "", "Document (.docx) to inspect (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PRACTICALS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("practicals")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/practicals")
	v.AddConfigPath("/etc/practicals")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openOutput returns stdout for "" and "-", and a created file otherwise.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeOutput(path string, data []byte) error {
	w, err := openOutput(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return w.Close()
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServiceConfig{
		MaxUploadBytes: v.GetInt64("max-upload-bytes"),
		FixZip:         v.GetBool("fix-zip"),
		ThumbWidth:     v.GetInt("thumb-width"),
		ThumbHeight:    v.GetInt("thumb-height"),
		MaxRefs:        v.GetInt("max-refs"),
	}

	live := preview.NewLive(preview.NewRegistry(cfg.MaxRefs), basePath+handler.ObjectsPath)
	defer func() {
		if err := live.Close(); err != nil {
			slog.Warn("release preview references", "error", err)
		}
	}()
	h := handler.New(generator.New(docx.WriteOptions{FixZip: cfg.FixZip}, nil), live, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"max_upload_bytes", cfg.MaxUploadBytes,
		"fix_zip", cfg.FixZip,
		"max_refs", cfg.MaxRefs,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runRender(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	s, err := session.LoadFile(afero.NewOsFs(), v.GetString("file"))
	if err != nil {
		return err
	}
	if err := s.Student.Validate(); err != nil {
		return fmt.Errorf("invalid student data: %w", err)
	}

	gen := generator.New(docx.WriteOptions{FixZip: v.GetBool("fix-zip")}, nil)
	data, err := gen.Render(cmd.Context(), s)
	if err != nil {
		return err
	}
	if v.GetBool("base64") {
		data = []byte(docx.EncodeText(data) + "\n")
	}
	if err := writeOutput(v.GetString("output"), data); err != nil {
		return err
	}
	slog.Info("rendered document", "output", v.GetString("output"), "practicals", len(s.Practicals))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg := model.ExportConfig{
		Server:    v.GetString("server"),
		OutputDir: v.GetString("output"),
		Overwrite: v.GetBool("overwrite"),
		Timeout:   v.GetDuration("timeout"),
	}

	s, err := session.LoadFile(afero.NewOsFs(), v.GetString("file"))
	if err != nil {
		return err
	}

	var t client.Transport
	if cfg.Server != "" {
		t = client.NewHTTPTransport(cfg.Server, cfg.Timeout)
	} else {
		t = client.LocalTransport{Generator: generator.New(docx.WriteOptions{FixZip: v.GetBool("fix-zip")}, nil)}
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(lang))

	e := client.NewExporter(t, client.NewFileSink(cfg.OutputDir, cfg.Overwrite), nil)
	path, err := e.Export(ctx, s)
	switch {
	case errors.Is(err, client.ErrBusy):
		fmt.Fprintln(cmd.ErrOrStderr(), appI18n.T(ctx, "ExportBusy"))
		return err
	case err != nil:
		fmt.Fprintln(cmd.ErrOrStderr(), appI18n.T(ctx, "ExportFailed"))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "ExportDone", map[string]any{"Path": path}),
		appI18n.Tp(ctx, "PracticalsCount", len(s.Practicals)))
	return nil
}

func runPreview(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))

	s, err := session.LoadFile(afero.NewOsFs(), v.GetString("file"))
	if err != nil {
		return err
	}
	page, err := preview.Bytes(ctx, s, preview.DataURIs{
		MaxWidth:  v.GetInt("thumb-width"),
		MaxHeight: v.GetInt("thumb-height"),
	})
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), page)
}

// outline is the YAML summary printed by inspect.
type outline struct {
	Title      string            `yaml:"title"`
	Creator    string            `yaml:"creator"`
	Header     []string          `yaml:"header"`
	Practicals []outlinePractical `yaml:"practicals"`
}

type outlinePractical struct {
	Heading    string `yaml:"heading"`
	Paragraphs int    `yaml:"paragraphs"`
	Images     int    `yaml:"images"`
}

func runInspect(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	data, err := os.ReadFile(v.GetString("file"))
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	doc, err := docx.Read(data)
	if err != nil {
		return err
	}

	out := outline{Title: doc.Properties.Title, Creator: doc.Properties.Creator}
	for _, p := range doc.Header {
		out.Header = append(out.Header, p.Text())
	}
	cur := &outlinePractical{}
	flush := func() {
		if cur.Heading != "" {
			out.Practicals = append(out.Practicals, *cur)
		}
		cur = &outlinePractical{}
	}
	for _, b := range doc.Body {
		switch blk := b.(type) {
		case *docx.Paragraph:
			if blk.Align == docx.AlignCenter && strings.HasPrefix(blk.Text(), docx.HeadingPrefix) {
				flush()
				cur.Heading = blk.Text()
				continue
			}
			cur.Paragraphs++
		case *docx.Image:
			cur.Images++
		case *docx.PageBreak:
			flush()
		}
	}
	flush()

	enc, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outline: %w", err)
	}
	return writeOutput(v.GetString("output"), enc)
}
