package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
)

// Option 编排器选项
type Option func(*Orchestrator)

// WithExtractor 指定DOM提取器
func WithExtractor(e models.DomExtractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// WithEmitter 指定HTML输出器
func WithEmitter(e models.HTMLEmitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithHeaderCache 指定响应头缓存
func WithHeaderCache(c models.HeaderCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithRobots 指定robots检查器
func WithRobots(g *RobotsGuard) Option {
	return func(o *Orchestrator) { o.robots = g }
}

// WithResourceMonitor 按系统资源限制下载并发数
func WithResourceMonitor(m *ResourceMonitor) Option {
	return func(o *Orchestrator) { o.monitor = m }
}

// WithRender 页面使用浏览器渲染获取
func WithRender(render bool) Option {
	return func(o *Orchestrator) { o.render = render }
}

// CaptureResult 一次抓取的结果明细
type CaptureResult struct {
	RootFile      string
	Pages         []models.SavedFile
	Resources     []models.SavedFile
	Failed        []models.FailedFile
	TimedOutHosts []string
	Stats         models.CaptureStats
}

// Orchestrator 抓取编排器
// 发现阶段单协程递归展开页面, 之后由下载队列并发下载去重后的资源,
// 最后改写样式表并输出每个页面. 同一实例不支持并发调用 Capture
type Orchestrator struct {
	fetcher   models.Fetcher
	extractor models.DomExtractor
	emitter   models.HTMLEmitter
	cache     models.HeaderCache
	robots    *RobotsGuard
	monitor   *ResourceMonitor
	render    bool

	mu     sync.Mutex
	errs   []error
	result *CaptureResult
}

// NewOrchestrator 创建编排器
func NewOrchestrator(fetcher models.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:   fetcher,
		extractor: NewGoqueryExtractor(),
		emitter:   NewTokenEmitter(),
		cache:     NewLRUHeaderCache(0),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Errors 返回最近一次抓取记录的非致命错误
func (o *Orchestrator) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]error, len(o.errs))
	copy(out, o.errs)
	return out
}

// Result 返回最近一次抓取的结果明细
func (o *Orchestrator) Result() *CaptureResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// captureState 一次抓取的全部状态
type captureState struct {
	rootURL  string
	cfg      models.CapturePolicy
	policy   *CrawlPolicy
	graph    *ResourceGraph
	storage  *FileStorage
	rewriter *LinkRewriter

	classifier *ContentClassifier
	robots     *RobotsGuard
	infos      map[string]*models.URLContentTypeInfo

	// prefetched 发现阶段扫描过的样式表, 下载时直接使用
	prefetched map[string]*models.FetchResult

	progress  models.ProgressSink
	discovery *PhaseProgress
	download  *PhaseProgress
	emit      *PhaseProgress

	skipped int

	mu         sync.Mutex
	downloaded map[*ReferenceNode]*downloadRecord
	failed     []models.FailedFile
}

type downloadRecord struct {
	path        string
	finalURL    string
	contentType string
	size        int64
}

// Capture 抓取rootURL到destinationDir, 返回根页面文件路径
// 根页面无法获取时返回 *models.CaptureError; 取消时返回 ErrCaptureCancelled
func (o *Orchestrator) Capture(ctx context.Context, rootURL, destinationDir string, policy models.CapturePolicy, progress models.ProgressSink) (string, error) {
	if err := policy.Validate(); err != nil {
		return "", fmt.Errorf("策略无效: %w", err)
	}
	if err := models.ValidateURL(rootURL); err != nil {
		return "", &models.CaptureError{RootURL: rootURL, Err: err}
	}
	if progress == nil {
		progress = models.SilentProgress{}
	}

	o.mu.Lock()
	o.errs = nil
	o.result = nil
	o.mu.Unlock()

	storage := NewFileStorage(destinationDir)
	st := &captureState{
		rootURL:    rootURL,
		cfg:        policy,
		policy:     NewCrawlPolicy(policy, rootURL),
		graph:      NewResourceGraph(),
		storage:    storage,
		rewriter:   NewLinkRewriter(storage),
		classifier: NewContentClassifier(o.fetcher, o.cache),
		robots:     o.robots,
		infos:      make(map[string]*models.URLContentTypeInfo),
		prefetched: make(map[string]*models.FetchResult),
		progress:   progress,
		discovery:  NewPhaseProgress(progress, 0, discoveryWeight),
		download:   NewPhaseProgress(progress, discoveryWeight, downloadWeight),
		emit:       NewPhaseProgress(progress, discoveryWeight+downloadWeight, emitWeight),
		downloaded: make(map[*ReferenceNode]*downloadRecord),
	}
	if policy.RespectRobots && st.robots == nil {
		st.robots = NewRobotsGuard(o.fetcher, "", policy.Timeout())
	}

	start := time.Now()
	utils.Infof("🚀 开始抓取: %s (深度=%d, 最大页面=%d)", rootURL, policy.MaxDepth, policy.MaxPages)

	if err := storage.MkdirAll(""); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	root, err := o.discover(ctx, st, rootURL, rootURL, nil, 0, false)
	if err != nil {
		return "", err
	}
	if root == nil {
		return "", &models.CaptureError{RootURL: rootURL, Err: errors.New("根URL不是可抓取的网页")}
	}
	st.graph.Seal()
	utils.Infof("📄 发现完成: %d 个页面, 跳过 %d 个URL", st.policy.PageCount(), st.skipped)

	rootFile, err := o.materialize(ctx, st)
	if err != nil {
		return "", err
	}

	result := st.buildResult(rootFile, st.policy.TimedOutHosts())
	result.Stats.Duration = time.Since(start).Seconds()

	o.mu.Lock()
	o.result = result
	o.mu.Unlock()

	utils.Infof("✅ 抓取完成: %s (页面=%d, 资源=%d, 失败=%d, 耗时=%.1fs)",
		rootFile, result.Stats.Pages, result.Stats.Resources, result.Stats.FailedResources, result.Stats.Duration)
	return rootFile, nil
}

// discover 递归展开一个URL
// ignoreDepth为true时(框架)不消耗深度, 也和根页面一样不经过策略判断;
// 返回nil节点表示URL没有成为页面
func (o *Orchestrator) discover(ctx context.Context, st *captureState, rawURL, urlToReplace string, parent *PageNode, depth int, ignoreDepth bool) (*PageNode, error) {
	if err := checkCancel(ctx, st.progress); err != nil {
		return nil, err
	}

	isRoot := parent == nil
	unconditional := isRoot || ignoreDepth
	target, anchor := StripFragment(rawURL)

	var info *models.URLContentTypeInfo
	if unconditional || st.policy.ShouldDownloadURL(target) {
		info = st.classify(ctx, target)
	}
	if err := checkCancel(ctx, st.progress); err != nil {
		return nil, err
	}
	if info == nil {
		if isRoot {
			return nil, &models.CaptureError{RootURL: rawURL, Err: errors.New("无法识别根页面的内容类型")}
		}
		st.skipped++
		return nil, nil
	}

	if info.IsWebPage() && (unconditional || st.policy.ShouldDownloadInfo(info)) {
		if existing, ok := st.policy.DiscoveredPage(target); ok && !isRoot {
			return existing, nil
		}
		return o.expandPage(ctx, st, target, anchor, urlToReplace, parent, depth, ignoreDepth)
	}

	if isRoot {
		return nil, &models.CaptureError{RootURL: rawURL, Err: fmt.Errorf("根URL不是网页: %s", info.ContentType)}
	}

	if !info.IsWebPage() && (unconditional || st.policy.ShouldDownloadInfo(info)) {
		if _, err := parent.AttachReference(urlToReplace, target); err != nil {
			return nil, err
		}
		utils.Debugf("作为资源附加: %s (%s)", target, info.ContentType)
		return nil, nil
	}

	utils.Debugf("策略拒绝: %s (%s)", target, info.ContentType)
	st.skipped++
	return nil, nil
}

// expandPage 获取页面、登记节点并递归展开框架与子页面
func (o *Orchestrator) expandPage(ctx context.Context, st *captureState, target, anchor, urlToReplace string, parent *PageNode, depth int, isFrame bool) (node *PageNode, err error) {
	isRoot := parent == nil

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("捕获panic: URL=%s, 深度=%d, 错误=%v", target, depth, r)
			err = o.handleError(st, &models.FetchError{URL: target, Err: fmt.Errorf("页面展开panic: %v", r)})
			node = nil
		}
	}()

	result, err := o.fetchPageWithRetry(ctx, st, target)
	if err != nil {
		if models.IsCancelled(err) {
			return nil, err
		}
		if isRoot {
			return nil, &models.CaptureError{RootURL: target, Err: err}
		}
		return nil, o.handleError(st, err)
	}

	finalURL, _ := StripFragment(result.FinalURL)
	if finalURL == "" {
		finalURL = target
	}

	if ct, _ := models.SplitContentType(result.ContentType); ct != "" && !models.IsWebPageType(ct) && !isRoot {
		// 探测结果与实际响应不一致, 按资源处理
		if _, err := parent.AttachReference(urlToReplace, target); err != nil {
			return nil, err
		}
		return nil, nil
	}

	doc, err := o.extractor.Extract(result.Body, finalURL)
	if err != nil {
		if isRoot {
			return nil, &models.CaptureError{RootURL: target, Err: err}
		}
		return nil, o.handleError(st, &models.FetchError{URL: target, Err: err})
	}
	doc.URL = finalURL

	ds := &DiscoveryState{
		RequestedURL: target,
		FinalURL:     finalURL,
		URLToReplace: urlToReplace,
		Anchor:       anchor,
		Parent:       parent,
		Depth:        depth,
		IsFrame:      isFrame,
		ContentType:  result.ContentType,
		Document:     doc,
	}
	if st.cfg.ScanStylesheets {
		o.scanStylesheets(ctx, st, doc, ds)
	}

	node, err = st.graph.Finalize(ds)
	if err != nil {
		return nil, err
	}
	st.policy.RegisterPage(target, node, !isFrame)
	if finalURL != target {
		st.policy.RegisterPage(finalURL, node, false)
	}

	if isRoot {
		st.discovery.Update(1, 1, "已获取根页面")
	} else {
		st.discovery.Update(0, 1, fmt.Sprintf("已获取页面 %s", target))
	}
	utils.Debugf("页面已获取: %s (深度=%d, 资源=%d, 链接=%d)", target, depth, len(node.References()), len(doc.Links()))

	if isRoot && st.cfg.MaxDepth != 0 {
		if _, err := st.graph.CloneRoot(); err != nil {
			return nil, err
		}
	}

	for _, frame := range doc.Frames {
		if _, err := o.discover(ctx, st, frame.Absolute, frame.Raw, node, depth, true); err != nil {
			return nil, err
		}
	}

	if !st.policy.ShouldContinue(depth) {
		return node, nil
	}

	for _, link := range o.subPageCandidates(ctx, st, node, doc) {
		if !st.policy.ShouldContinue(depth) {
			break
		}
		if _, err := o.discover(ctx, st, link.Absolute, link.Raw, node, depth+1, false); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// subPageCandidates 收集子页面候选
// 排除已发现页面(整个抓取范围内)、祖先页面、策略或robots拒绝的URL
func (o *Orchestrator) subPageCandidates(ctx context.Context, st *captureState, node *PageNode, doc *models.Document) []models.ResourceURL {
	links := doc.Links()
	if node.IsRoot() && len(st.cfg.SelectedURLs) > 0 {
		links = links[:0:0]
		for _, u := range st.cfg.SelectedURLs {
			links = append(links, models.ResourceURL{Raw: u, Absolute: u})
		}
	}

	excluded := map[string]bool{CanonicalURL(node.RequestedURL): true, CanonicalURL(node.AbsoluteURL): true}
	for _, a := range st.graph.Ancestors(node) {
		excluded[CanonicalURL(a.RequestedURL)] = true
		excluded[CanonicalURL(a.AbsoluteURL)] = true
	}

	var out []models.ResourceURL
	for _, link := range links {
		target, _ := StripFragment(link.Absolute)
		key := CanonicalURL(target)
		if excluded[key] || st.policy.IsDiscovered(target) {
			continue
		}
		excluded[key] = true

		if !st.policy.ShouldDownloadURL(target) {
			utils.Debugf("跳过子页面: %s", target)
			st.skipped++
			continue
		}
		if st.cfg.RespectRobots && !st.robots.Allowed(ctx, target) {
			utils.Debugf("robots.txt禁止: %s", target)
			st.skipped++
			continue
		}
		out = append(out, link)
	}
	return out
}

// scanStylesheets 获取页面链接的样式表, 把其中的url()作为页面的显式引用
func (o *Orchestrator) scanStylesheets(ctx context.Context, st *captureState, doc *models.Document, ds *DiscoveryState) {
	for _, sheet := range doc.Stylesheets {
		if !st.policy.ShouldDownloadURL(sheet.Absolute) {
			continue
		}
		fctx, cancel := withOptionalTimeout(ctx, st.cfg.ResourceTimeout())
		result, err := boundedFetch(fctx, o.fetcher, &models.FetchRequest{URL: sheet.Absolute, Method: http.MethodGet})
		cancel()
		if err != nil {
			utils.Debugf("获取样式表失败 [%s]: %v", sheet.Absolute, err)
			continue
		}
		st.mu.Lock()
		st.prefetched[CanonicalURL(sheet.Absolute)] = result
		st.mu.Unlock()
		cssURL := result.FinalURL
		if cssURL == "" {
			cssURL = sheet.Absolute
		}
		for _, r := range ExtractCSSURLs(string(result.Body), cssURL) {
			ds.AddReference(r.Raw, r.Absolute)
		}
	}
}

// fetchPageWithRetry 最多尝试 1+RetryCount 次, 只对超时重试
// 全部超时后登记主机超时
func (o *Orchestrator) fetchPageWithRetry(ctx context.Context, st *captureState, target string) (*models.FetchResult, error) {
	attempts := 1 + st.cfg.RetryCount
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := checkCancel(ctx, st.progress); err != nil {
			return nil, err
		}

		fctx, cancel := withOptionalTimeout(ctx, st.cfg.Timeout())
		result, err := boundedFetch(fctx, o.fetcher, &models.FetchRequest{URL: target, Method: http.MethodGet, Render: o.render})
		cancel()
		if err == nil {
			return result, nil
		}
		if models.IsCancelled(err) || ctx.Err() != nil {
			return nil, models.ErrCaptureCancelled
		}
		lastErr = err
		if !errors.Is(err, models.ErrTimeout) {
			return nil, err
		}
		utils.Warnf("页面超时 [%s] (第%d/%d次)", target, attempt, attempts)
	}

	st.policy.RegisterTimeout(target)
	utils.Warnf("页面多次超时, 主机不再访问: %s", target)
	return nil, lastErr
}

// boundedFetch 在ctx结束时立即返回, 不依赖获取器自身遵守deadline
func boundedFetch(ctx context.Context, fetcher models.Fetcher, req *models.FetchRequest) (*models.FetchResult, error) {
	type outcome struct {
		result *models.FetchResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := fetcher.Fetch(ctx, req)
		done <- outcome{r, err}
	}()

	select {
	case <-ctx.Done():
		return nil, contextError(ctx, req.URL)
	case out := <-done:
		return out.result, out.err
	}
}

// materialize 下载资源并输出所有页面
func (o *Orchestrator) materialize(ctx context.Context, st *captureState) (string, error) {
	pages := st.graph.Pages()

	// 占位文件
	for _, page := range pages {
		rel := st.storage.NonConflictingPath(page.RelativePath())
		page.SetFileName(filepath.Base(rel))
		if err := st.storage.Create(rel); err != nil {
			return "", fmt.Errorf("创建页面文件失败: %w", err)
		}
	}

	unique, order := uniqueReferences(pages)
	var jobs []*models.DownloadJob
	joint := NewJointProgress(st.download, len(order))
	for _, ref := range order {
		if skipReference(ref.AbsoluteURL) {
			continue
		}
		if st.cfg.RemoveHostOnTimeout && st.policy.IsURLTimedOut(ref.AbsoluteURL) {
			st.skipped++
			continue
		}
		jobs = append(jobs, &models.DownloadJob{
			URL:             ref.AbsoluteURL,
			DestinationPath: ref.RelativePath(),
			Progress:        joint.Slot(),
			Payload:         ref,
		})
	}

	workers := st.cfg.Workers
	if o.monitor != nil {
		workers = o.monitor.CalculateMaxWorkers(workers)
	}
	queue := NewDownloadQueue(workers, st.cfg.ThrowOnFailure, o.downloadHandler(st))
	for _, job := range jobs {
		if err := queue.Enqueue(job); err != nil {
			return "", err
		}
	}
	utils.Infof("📦 开始下载 %d 个资源 (并发=%d)", len(jobs), workers)
	qerr := queue.Execute(ctx)

	o.mu.Lock()
	o.errs = append(o.errs, queue.Errors()...)
	o.mu.Unlock()
	if qerr != nil {
		return "", qerr
	}

	// 所有资源名确定后再改写样式表
	refLookup := func(abs string) (string, bool) {
		winner, ok := unique[CanonicalURL(abs)]
		if !ok || !st.isDownloaded(winner) {
			return "", false
		}
		return escapeSegment(winner.FileName()), true
	}
	for _, ref := range order {
		rec := st.record(ref)
		if rec == nil || !strings.EqualFold(filepath.Ext(rec.path), ".css") {
			continue
		}
		if err := st.rewriter.RewriteCSSFile(ref.RelativePath(), rec.finalURL, LiveFallback(refLookup)); err != nil {
			if herr := o.handleError(st, err); herr != nil {
				return "", herr
			}
		}
	}

	for i, page := range pages {
		if err := checkCancel(ctx, st.progress); err != nil {
			return "", err
		}
		if err := o.emitPage(st, page, pages, unique); err != nil {
			if page.IsRoot() {
				return "", &models.CaptureError{RootURL: st.rootURL, Err: err}
			}
			if herr := o.handleError(st, err); herr != nil {
				return "", herr
			}
		}
		st.emit.Update(i+1, len(pages), fmt.Sprintf("已保存页面 %s", page.FileName()))
	}

	return st.storage.Abs(pages[0].RelativePath()), nil
}

// downloadHandler 单个资源的下载流程
func (o *Orchestrator) downloadHandler(st *captureState) JobHandler {
	return func(ctx context.Context, job *models.DownloadJob) error {
		ref := job.Payload.(*ReferenceNode)
		defer job.Progress.Update(1, 1, fmt.Sprintf("已处理资源 %s", ref.FileName()))

		rel, err := st.rewriter.ClaimFile(ref)
		if err != nil {
			st.fail(ref.AbsoluteURL, "io_error", err)
			return err
		}
		job.DestinationPath = rel

		result := st.takePrefetched(ref.AbsoluteURL)
		if result == nil {
			fctx, cancel := withOptionalTimeout(ctx, st.cfg.ResourceTimeout())
			result, err = boundedFetch(fctx, o.fetcher, &models.FetchRequest{URL: ref.AbsoluteURL, Method: http.MethodGet})
			cancel()
		}
		if err != nil {
			st.storage.Remove(rel)
			ref.Release()
			if models.IsCancelled(err) {
				return err
			}
			st.fail(ref.AbsoluteURL, errorType(err), err)
			return fmt.Errorf("下载资源失败 %s: %w", ref.AbsoluteURL, err)
		}

		if st.cfg.MaxFileSize > 0 && int64(len(result.Body)) > st.cfg.MaxFileSize {
			st.storage.Remove(rel)
			ref.Release()
			utils.Debugf("资源超过大小限制, 跳过: %s (%d 字节)", ref.AbsoluteURL, len(result.Body))
			return nil
		}

		if err := st.storage.WriteFile(rel, result.Body); err != nil {
			st.fail(ref.AbsoluteURL, "io_error", err)
			return err
		}

		finalRel, err := st.rewriter.FixExtension(ref, result.ContentType, result.FinalURL)
		if err != nil {
			utils.Warnf("%v", err)
		}
		ref.Freeze()

		finalURL := result.FinalURL
		if finalURL == "" {
			finalURL = ref.AbsoluteURL
		}
		st.mu.Lock()
		st.downloaded[ref] = &downloadRecord{
			path:        finalRel,
			finalURL:    finalURL,
			contentType: result.ContentType,
			size:        int64(len(result.Body)),
		}
		st.mu.Unlock()
		job.DestinationPath = finalRel
		return nil
	}
}

// emitPage 按URL映射输出页面
func (o *Orchestrator) emitPage(st *captureState, page *PageNode, pages []*PageNode, unique map[string]*ReferenceNode) error {
	if page.Document == nil {
		return nil
	}
	urlMap := make(map[string]string)
	put := func(rawURL, target string) {
		key := CanonicalURL(rawURL)
		if _, exists := urlMap[key]; !exists {
			urlMap[key] = target
		}
	}

	for _, other := range pages {
		if other.IsRoot() {
			continue
		}
		rel := page.RelativeURLForPage(other)
		put(other.RequestedURL, rel)
		put(other.AbsoluteURL, rel)
	}
	if root := pages[0]; root.IsRoot() {
		rel := page.RelativeURLForPage(root)
		put(root.RequestedURL, rel)
		put(root.AbsoluteURL, rel)
	}

	for _, ref := range page.References() {
		winner := unique[CanonicalURL(ref.AbsoluteURL)]
		if winner == nil || !st.isDownloaded(winner) {
			continue
		}
		put(ref.AbsoluteURL, winner.RelativeURLFrom(page))
	}

	f, err := st.storage.Open(page.RelativePath(), models.OpenCreate)
	if err != nil {
		return err
	}
	if err := o.emitter.Emit(f, page.Document, urlMap); err != nil {
		f.Close()
		return fmt.Errorf("输出页面失败 [%s]: %w", page.AbsoluteURL, err)
	}
	return f.Close()
}

// handleError 记录或返回错误: 取消和 ThrowOnFailure 时返回, 否则记录后继续
func (o *Orchestrator) handleError(st *captureState, err error) error {
	if models.IsCancelled(err) || st.cfg.ThrowOnFailure {
		return err
	}
	utils.Warnf("抓取出错(继续): %v", err)
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()

	var fe *models.FetchError
	if errors.As(err, &fe) {
		st.fail(fe.URL, errorType(err), err)
	}
	return nil
}

// classify 同一次抓取内按规范化URL缓存分类结果
func (st *captureState) classify(ctx context.Context, target string) *models.URLContentTypeInfo {
	key := CanonicalURL(target)
	if info, ok := st.infos[key]; ok {
		return info
	}
	info := st.classifier.Classify(ctx, target, st.cfg.Timeout())
	st.infos[key] = info
	return info
}

// takePrefetched 取出发现阶段已获取的响应, 每个URL只使用一次
func (st *captureState) takePrefetched(rawURL string) *models.FetchResult {
	key := CanonicalURL(rawURL)
	st.mu.Lock()
	defer st.mu.Unlock()
	result := st.prefetched[key]
	delete(st.prefetched, key)
	return result
}

func (st *captureState) isDownloaded(ref *ReferenceNode) bool {
	return st.record(ref) != nil
}

func (st *captureState) record(ref *ReferenceNode) *downloadRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.downloaded[ref]
}

func (st *captureState) fail(rawURL, kind string, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failed = append(st.failed, models.FailedFile{URL: rawURL, ErrorType: kind, ErrorMsg: err.Error()})
}

func (st *captureState) buildResult(rootFile string, timedOut []string) *CaptureResult {
	st.mu.Lock()
	defer st.mu.Unlock()

	sort.Strings(timedOut)
	result := &CaptureResult{
		RootFile:      rootFile,
		Failed:        append([]models.FailedFile(nil), st.failed...),
		TimedOutHosts: timedOut,
	}
	now := time.Now()

	for _, page := range st.graph.Pages() {
		path := st.storage.Abs(page.RelativePath())
		var size int64
		if fi, err := os.Stat(path); err == nil {
			size = fi.Size()
		}
		owner := ""
		if p := st.graph.Parent(page); p != nil {
			owner = p.AbsoluteURL
		}
		result.Pages = append(result.Pages, models.SavedFile{
			URL:         page.AbsoluteURL,
			FilePath:    path,
			Kind:        models.KindPage,
			ContentType: page.ContentType,
			Size:        size,
			OwnerURL:    owner,
			SavedAt:     now,
		})
		result.Stats.TotalSize += size
	}

	for ref, rec := range st.downloaded {
		owner := ""
		if p := st.graph.Page(ref.OwnerID); p != nil {
			owner = p.AbsoluteURL
		}
		result.Resources = append(result.Resources, models.SavedFile{
			URL:         ref.AbsoluteURL,
			FilePath:    st.storage.Abs(rec.path),
			Kind:        models.KindResource,
			ContentType: rec.contentType,
			Size:        rec.size,
			OwnerURL:    owner,
			SavedAt:     now,
		})
		result.Stats.TotalSize += rec.size
	}
	sort.Slice(result.Resources, func(i, j int) bool { return result.Resources[i].URL < result.Resources[j].URL })

	result.Stats.Pages = len(result.Pages)
	result.Stats.Resources = len(result.Resources)
	result.Stats.FailedResources = len(result.Failed)
	result.Stats.SkippedURLs = st.skipped
	result.Stats.TimedOutHosts = len(timedOut)
	return result
}

// uniqueReferences 按绝对URL去重, 先出现的引用胜出
func uniqueReferences(pages []*PageNode) (map[string]*ReferenceNode, []*ReferenceNode) {
	unique := make(map[string]*ReferenceNode)
	var order []*ReferenceNode
	for _, page := range pages {
		for _, ref := range page.References() {
			key := CanonicalURL(ref.AbsoluteURL)
			if _, ok := unique[key]; ok {
				continue
			}
			unique[key] = ref
			order = append(order, ref)
		}
	}
	return unique, order
}

// skipReference data: 内嵌资源以及不支持的协议不下载
func skipReference(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "data:") {
		return true
	}
	return !(strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "file:"))
}

func errorType(err error) string {
	switch {
	case models.IsCancelled(err):
		return "cancelled"
	case errors.Is(err, models.ErrTimeout):
		return "timeout"
	default:
		return "fetch_error"
	}
}

func checkCancel(ctx context.Context, progress models.ProgressSink) error {
	if ctx.Err() != nil || progress.CancelRequested() {
		return models.ErrCaptureCancelled
	}
	return nil
}
