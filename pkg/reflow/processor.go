package reflow

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/stackvity/tex-joiner/pkg/reflow/cache"
	"github.com/stackvity/tex-joiner/pkg/reflow/encoding"
	"github.com/stackvity/tex-joiner/pkg/reflow/language"
)

// FileProcessor runs the per-document pipeline: read, decode, reflow,
// encode and write according to the write mode.
type FileProcessor struct {
	opts            *Options
	logger          *slog.Logger
	reflowLogger    *slog.Logger
	cacheManager    cache.CacheManager
	langDetector    language.LanguageDetector
	encodingHandler encoding.EncodingHandler
	reflower        *Reflower
	accepted        map[string]bool
	configHash      string
	outMu           sync.Mutex
}

// NewFileProcessor creates a FileProcessor. It is safe for concurrent use.
func NewFileProcessor(
	opts *Options,
	loggerHandler slog.Handler,
	cacheMgr cache.CacheManager,
	langDet language.LanguageDetector,
	encHandler encoding.EncodingHandler,
) *FileProcessor {
	logger := slog.New(loggerHandler).With(slog.String("component", "processor"))
	languages := opts.Languages
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	accepted := make(map[string]bool, len(languages))
	for _, l := range languages {
		accepted[strings.ToLower(strings.TrimSpace(l))] = true
	}
	if cacheMgr == nil {
		cacheMgr = &NoOpCacheManager{}
	}
	configHash := CalculateConfigHash(opts)
	logger.Debug("Calculated config hash", slog.String("hash", configHash))
	return &FileProcessor{
		opts:            opts,
		logger:          logger,
		reflowLogger:    slog.New(loggerHandler).With(slog.String("component", "reflow")),
		cacheManager:    cacheMgr,
		langDetector:    langDet,
		encodingHandler: encHandler,
		reflower:        New(opts.ReflowConfig()),
		accepted:        accepted,
		configHash:      configHash,
	}
}

// ConfigHash returns the hash of every option that affects output.
func (p *FileProcessor) ConfigHash() string { return p.configHash }

func hashHex(b []byte) string { return fmt.Sprintf("%x", sha256.Sum256(b)) }

// ProcessFile executes the pipeline for one job. result is a FileInfo,
// SkippedInfo or ErrorInfo; err is non-nil exactly when result is an ErrorInfo.
func (p *FileProcessor) ProcessFile(ctx context.Context, job Job) (result any, status Status, err error) {
	startTime := time.Now()
	path := job.DisplayPath
	if path == "" {
		path = job.Path
	}
	logArgs := []any{slog.String("path", path)}

	defer func() {
		duration := time.Since(startTime)
		message := ""
		if err != nil {
			status = StatusFailed
			if _, ok := result.(ErrorInfo); !ok {
				result = ErrorInfo{Path: path, Error: err.Error(), IsFatal: p.opts.OnErrorMode == OnErrorStop}
			}
			message = err.Error()
		} else if status == "" {
			status = StatusSuccess
		}
		logLevel := slog.LevelDebug
		if status == StatusFailed {
			logLevel = slog.LevelError
		}
		p.logger.Log(ctx, logLevel, "Processor finished file task",
			append(logArgs, slog.String("status", string(status)), slog.Duration("duration", duration), slog.String("message", message))...)
	}()

	fail := func(e error) (any, Status, error) {
		return ErrorInfo{Path: path, Error: e.Error(), IsFatal: p.opts.OnErrorMode == OnErrorStop}, StatusFailed, e
	}

	// 1. Cancellation
	select {
	case <-ctx.Done():
		return ErrorInfo{Path: path, Error: ctx.Err().Error(), IsFatal: true}, StatusFailed, ctx.Err()
	default:
	}

	// 2. Stat and read
	fileInfo, statErr := os.Stat(job.Path)
	if statErr != nil {
		return fail(fmt.Errorf("%w: %w", ErrStatFailed, statErr))
	}
	modTime := fileInfo.ModTime()
	source, readErr := os.ReadFile(job.Path)
	if readErr != nil {
		return fail(fmt.Errorf("%w: %w", ErrReadFailed, readErr))
	}
	sourceHash := hashHex(source)
	logArgs = append(logArgs, slog.String("sourceHash", sourceHash))

	// 3. Cache
	mode := p.opts.WriteMode
	cacheStatus := CacheStatusDisabled
	if p.opts.CacheEnabled && mode.writes() {
		cacheStatus = CacheStatusMiss
		if !p.opts.IgnoreCacheRead {
			if hit, outputHash := p.cacheManager.Check(job.Path, modTime, sourceHash, p.configHash); hit && p.outputIntact(job.Path, outputHash) {
				p.logger.Info("Cache hit", append(logArgs, slog.String("outputHash", outputHash))...)
				lang, _ := p.langDetector.DetectByPath(job.Path)
				info := FileInfo{
					Path:        path,
					Language:    lang,
					SizeBytes:   fileInfo.Size(),
					ModTime:     modTime,
					CacheStatus: CacheStatusHit,
					DurationMs:  time.Since(startTime).Milliseconds(),
				}
				if mode == WriteModeDerived {
					info.OutputPath = OutputPath(path)
				}
				return info, StatusCached, nil
			}
			p.logger.Debug("Cache miss", logArgs...)
		}
	}

	// 4. Binary detection
	if p.encodingHandler.IsBinary(source) {
		p.logger.Info("Skipping binary file", logArgs...)
		return SkippedInfo{Path: path, Reason: SkipReasonBinary, Details: ErrBinaryFile.Error()}, StatusSkipped, nil
	}

	// 5. Decode
	decoded, decErr := p.encodingHandler.DetectAndDecode(source)
	if decErr != nil {
		return fail(fmt.Errorf("%w: %w", ErrDecodeFailed, decErr))
	}
	logArgs = append(logArgs, slog.String("encoding", decoded.Encoding))
	if !decoded.Certain {
		p.logger.Debug("Charset is a guess", logArgs...)
	}

	// 6. Language
	lang, ok := p.langDetector.DetectByPath(job.Path)
	if !ok || job.CheckLanguage {
		detected, confidence, langErr := p.langDetector.Detect(decoded.Content, job.Path)
		if langErr != nil {
			p.logger.Warn("Language detection failed", append(logArgs, slog.String("error", langErr.Error()))...)
			detected = language.Unknown
		}
		lang = detected
		p.logger.Debug("Language detected from content", append(logArgs, slog.String("language", lang), slog.Float64("confidence", confidence))...)
	}
	if job.CheckLanguage && !p.accepted[lang] {
		return SkippedInfo{Path: path, Reason: SkipReasonLanguage, Details: fmt.Sprintf("Detected language %q", lang)}, StatusSkipped, nil
	}

	// 7. Reflow
	reflower := p.reflower
	if p.reflowLogger.Enabled(ctx, slog.LevelDebug) {
		reflower = reflower.WithLogger(p.reflowLogger.With(slog.String("path", path)))
	}
	text, stats := reflower.Transform(string(decoded.Content))
	warnings := stats.Warnings()
	for _, w := range warnings {
		p.logger.Warn("Structural warning", append(logArgs, slog.String("warning", w))...)
	}

	// 8. Encode. Unchanged documents keep their exact bytes.
	output := source
	if stats.Changed() {
		encoded, encErr := p.encodingHandler.Encode([]byte(text), decoded.Encoding, decoded.BOM)
		if encErr != nil {
			return fail(fmt.Errorf("%w: %w", ErrEncodeFailed, encErr))
		}
		output = encoded
	}
	outputHash := hashHex(output)

	info := FileInfo{
		Path:        path,
		Language:    lang,
		Encoding:    decoded.Encoding,
		BOM:         decoded.BOM,
		SizeBytes:   fileInfo.Size(),
		ModTime:     modTime,
		CacheStatus: cacheStatus,
		Changed:     stats.Changed(),
		Stats:       stats,
		Warnings:    warnings,
	}

	// 9. Write
	perm := fileInfo.Mode().Perm()
	switch mode {
	case WriteModeCheck:
		if info.Changed {
			p.logger.Info("Document would be reflowed", append(logArgs, slog.Int("joins", stats.Joins))...)
		}
	case WriteModeStdout:
		if err := p.writeStdout(output); err != nil {
			return fail(fmt.Errorf("%w: stdout: %w", ErrWriteFailed, err))
		}
	case WriteModeInPlace:
		if !info.Changed {
			break
		}
		backup, err := writeInPlace(job.Path, source, output, perm)
		if err != nil {
			return fail(err)
		}
		info.BackupPath = BackupPath(path)
		p.logger.Info("Document reflowed in place", append(logArgs, slog.String("backup", backup), slog.String("outputHash", outputHash))...)
		if st, err := os.Stat(job.Path); err == nil {
			modTime = st.ModTime()
		}
		sourceHash = outputHash
	default:
		out, err := writeDerived(job.Path, output, perm)
		if err != nil {
			return fail(err)
		}
		info.OutputPath = OutputPath(path)
		p.logger.Info("Output file written", append(logArgs, slog.String("output", out), slog.String("outputHash", outputHash))...)
	}

	// 10. Cache update
	if p.opts.CacheEnabled && mode.writes() {
		if updateErr := p.cacheManager.Update(job.Path, modTime, sourceHash, p.configHash, outputHash); updateErr != nil {
			p.logger.Warn("Failed to update cache entry", append(logArgs, slog.String("error", updateErr.Error()))...)
		}
	}

	info.DurationMs = time.Since(startTime).Milliseconds()
	if info.Changed {
		return info, StatusSuccess, nil
	}
	return info, StatusUnchanged, nil
}

// outputIntact reports whether the output recorded in the cache is still on
// disk. In-place mode has nothing else to check: the source is the output.
func (p *FileProcessor) outputIntact(source, outputHash string) bool {
	if p.opts.WriteMode != WriteModeDerived {
		return true
	}
	data, err := os.ReadFile(OutputPath(source))
	return err == nil && hashHex(data) == outputHash
}

func (p *FileProcessor) writeStdout(data []byte) error {
	w := p.opts.Output
	if w == nil {
		w = os.Stdout
	}
	p.outMu.Lock()
	defer p.outMu.Unlock()
	_, err := w.Write(data)
	return err
}

// CalculateConfigHash returns a stable hash of every option that changes
// what a run writes, plus the tool version.
func CalculateConfigHash(opts *Options) string {
	hasher := sha256.New()
	addToHash := func(h hash.Hash, key string, value string) {
		h.Write([]byte(key + ":" + value + ";"))
	}
	addBoolToHash := func(h hash.Hash, key string, value bool) {
		addToHash(h, key, fmt.Sprintf("%t", value))
	}
	sorted := func(in []string) string {
		s := slices.Clone(in)
		slices.Sort(s)
		return strings.Join(s, ",")
	}

	addToHash(hasher, "WriteMode", string(opts.WriteMode))
	addBoolToHash(hasher, "DeleteNewline", opts.DeleteNewline)
	addToHash(hasher, "ExtraBlockCommands", sorted(opts.ExtraBlockCommands))
	addToHash(hasher, "ExtraPreservedEnvironments", sorted(opts.ExtraPreservedEnvironments))
	addToHash(hasher, "DefaultEncoding", opts.DefaultEncoding)

	appVersion := opts.AppVersion
	if appVersion == "" {
		appVersion = "dev"
	}
	addToHash(hasher, "AppVersion", appVersion)
	return fmt.Sprintf("%x", hasher.Sum(nil))
}
