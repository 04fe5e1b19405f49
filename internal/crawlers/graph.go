package crawlers

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/google/uuid"
)

// ReferencesDir 资源文件所在的子目录名
const ReferencesDir = "references"

// ErrGraphSealed 图已封闭, 不能再修改
var ErrGraphSealed = errors.New("资源图已封闭")

// ResourceGraph 一次抓取发现的页面和资源
// 页面保存在数组中, 通过ID和ParentID表示父子关系
type ResourceGraph struct {
	token string

	mu     sync.RWMutex
	pages  []*PageNode
	sealed bool

	refNames *nameRegistry
}

// NewResourceGraph 创建资源图, 每次抓取生成一个目录令牌
func NewResourceGraph() *ResourceGraph {
	return &ResourceGraph{
		token:    uuid.New().String(),
		refNames: newNameRegistry(),
	}
}

// DirectoryToken 子页面和资源所在目录名
func (g *ResourceGraph) DirectoryToken() string {
	return g.token
}

// Root 根页面, 尚未发现时为nil
func (g *ResourceGraph) Root() *PageNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.pages) == 0 {
		return nil
	}
	return g.pages[0]
}

// Pages 按发现顺序返回所有页面
func (g *ResourceGraph) Pages() []*PageNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*PageNode, len(g.pages))
	copy(out, g.pages)
	return out
}

// Page 按ID查找页面
func (g *ResourceGraph) Page(id int) *PageNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id < 0 || id >= len(g.pages) {
		return nil
	}
	return g.pages[id]
}

// Parent 返回父页面, 根页面返回nil
func (g *ResourceGraph) Parent(node *PageNode) *PageNode {
	return g.Page(node.ParentID)
}

// Ancestors 从父页面到根页面的链
func (g *ResourceGraph) Ancestors(node *PageNode) []*PageNode {
	var chain []*PageNode
	for p := g.Parent(node); p != nil; p = g.Parent(p) {
		chain = append(chain, p)
	}
	return chain
}

// Seal 封闭图, 之后不能再添加页面或引用
func (g *ResourceGraph) Seal() {
	g.mu.Lock()
	g.sealed = true
	g.mu.Unlock()
}

// Sealed 是否已封闭
func (g *ResourceGraph) Sealed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sealed
}

// DiscoveryState 页面在发现阶段的可变状态
// 完成后通过 ResourceGraph.Finalize 转为 PageNode
type DiscoveryState struct {
	RequestedURL string // 请求的URL(已去掉片段)
	FinalURL     string // 重定向后的URL
	URLToReplace string // 父文档中的原始写法
	Anchor       string
	Parent       *PageNode
	Depth        int
	IsFrame      bool
	IsClone      bool
	ContentType  string
	Document     *models.Document

	explicit []models.ResourceURL
}

// AddReference 添加文档之外的显式引用(如样式表中的url())
func (s *DiscoveryState) AddReference(raw, absolute string) {
	s.explicit = append(s.explicit, models.ResourceURL{Raw: raw, Absolute: absolute})
}

// Finalize 把发现状态转为页面节点并加入图中
// 引用列表在此一次性计算: 文档资源按绝对URL去重, 然后是显式引用
func (g *ResourceGraph) Finalize(s *DiscoveryState) (*PageNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return nil, ErrGraphSealed
	}

	node := &PageNode{
		ID:             len(g.pages),
		ParentID:       -1,
		RequestedURL:   s.RequestedURL,
		AbsoluteURL:    s.FinalURL,
		URLToReplace:   s.URLToReplace,
		Anchor:         s.Anchor,
		DirectoryToken: g.token,
		Depth:          s.Depth,
		IsFrame:        s.IsFrame,
		IsClone:        s.IsClone,
		ContentType:    s.ContentType,
		Document:       s.Document,
		graph:          g,
		refIndex:       make(map[string]*ReferenceNode),
	}
	if node.AbsoluteURL == "" {
		node.AbsoluteURL = s.RequestedURL
	}
	if s.Parent != nil {
		node.ParentID = s.Parent.ID
	}

	node.fileName = PageFileName(node.AbsoluteURL, node.IsRoot())

	if s.Document != nil {
		for _, r := range s.Document.Resources {
			node.addReferenceLocked(r.Raw, r.Absolute)
		}
	}
	for _, r := range s.explicit {
		node.addReferenceLocked(r.Raw, r.Absolute)
	}

	g.pages = append(g.pages, node)
	return node, nil
}

// CloneRoot 以非根页面身份复制根页面, 子页面指回根页面时使用它
func (g *ResourceGraph) CloneRoot() (*PageNode, error) {
	root := g.Root()
	if root == nil {
		return nil, errors.New("根页面不存在")
	}
	st := &DiscoveryState{
		RequestedURL: root.RequestedURL,
		FinalURL:     root.AbsoluteURL,
		URLToReplace: root.URLToReplace,
		Parent:       root,
		Depth:        root.Depth,
		IsClone:      true,
		ContentType:  root.ContentType,
		Document:     root.Document,
	}
	clone, err := g.Finalize(st)
	if err != nil {
		return nil, err
	}
	clone.SetFileName(root.FileName())
	return clone, nil
}

// PageNode 已发现的页面
type PageNode struct {
	ID             int
	ParentID       int // 根页面为-1
	RequestedURL   string
	AbsoluteURL    string
	URLToReplace   string
	Anchor         string
	DirectoryToken string
	Depth          int
	IsFrame        bool
	IsClone        bool
	ContentType    string
	Document       *models.Document

	graph *ResourceGraph

	mu         sync.RWMutex
	fileName   string
	references []*ReferenceNode
	refIndex   map[string]*ReferenceNode
}

// IsRoot 是否为根页面
func (n *PageNode) IsRoot() bool {
	return n.ParentID < 0
}

// FileName 当前文件名
func (n *PageNode) FileName() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fileName
}

// SetFileName 修改文件名(放置占位文件时使用)
func (n *PageNode) SetFileName(name string) {
	n.mu.Lock()
	n.fileName = name
	n.mu.Unlock()
}

// RelativeBasePath 页面所在目录(相对输出目录)
func (n *PageNode) RelativeBasePath() string {
	if n.IsRoot() {
		return ""
	}
	return n.DirectoryToken
}

// RelativePath 页面文件路径(相对输出目录)
func (n *PageNode) RelativePath() string {
	return filepath.Join(n.RelativeBasePath(), n.FileName())
}

// RelativeBaseURL 页面所在目录的相对URL
func (n *PageNode) RelativeBaseURL() string {
	if n.IsRoot() {
		return ""
	}
	return escapeSegment(n.DirectoryToken) + "/"
}

// RelativeURL 页面相对输出目录的URL, 含片段
func (n *PageNode) RelativeURL() string {
	u := n.RelativeBaseURL() + escapeSegment(n.FileName())
	if n.Anchor != "" {
		u += "#" + n.Anchor
	}
	return u
}

// ReferencedFileRelativePath 资源目录(相对输出目录)
func (n *PageNode) ReferencedFileRelativePath() string {
	return filepath.Join(n.DirectoryToken, ReferencesDir)
}

// ReferencedFileRelativeURL 从本页面到资源目录的相对URL
func (n *PageNode) ReferencedFileRelativeURL() string {
	if n.IsRoot() {
		return escapeSegment(n.DirectoryToken) + "/" + ReferencesDir + "/"
	}
	return ReferencesDir + "/"
}

// RelativeURLForPage 从本页面链接到other的相对URL, 不含片段
func (n *PageNode) RelativeURLForPage(other *PageNode) string {
	name := escapeSegment(other.FileName())
	switch {
	case n.IsRoot() && other.IsRoot():
		return name
	case !n.IsRoot() && other.IsRoot():
		return "../" + name
	case n.IsRoot() && !other.IsRoot():
		return escapeSegment(other.DirectoryToken) + "/" + name
	default:
		return name
	}
}

// References 页面引用的资源
func (n *PageNode) References() []*ReferenceNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*ReferenceNode, len(n.references))
	copy(out, n.references)
	return out
}

// AttachReference 在发现阶段为页面追加引用(链接到的文档等)
// 图封闭后返回 ErrGraphSealed; 同一绝对URL只保留一个
func (n *PageNode) AttachReference(raw, absolute string) (*ReferenceNode, error) {
	n.graph.mu.RLock()
	sealed := n.graph.sealed
	n.graph.mu.RUnlock()
	if sealed {
		return nil, ErrGraphSealed
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addReferenceLocked(raw, absolute), nil
}

func (n *PageNode) addReferenceLocked(raw, absolute string) *ReferenceNode {
	if absolute == "" {
		return nil
	}
	key := CanonicalURL(absolute)
	if ref, ok := n.refIndex[key]; ok {
		return ref
	}
	ref := &ReferenceNode{
		OwnerID:        n.ID,
		URLToReplace:   raw,
		AbsoluteURL:    absolute,
		DirectoryToken: n.DirectoryToken,
		registry:       n.graph.refNames,
	}
	ref.fileName = ResourceFileName(absolute)
	n.refIndex[key] = ref
	n.references = append(n.references, ref)
	return ref
}

// ReferenceNode 页面引用的资源
type ReferenceNode struct {
	OwnerID        int
	URLToReplace   string
	AbsoluteURL    string
	DirectoryToken string

	registry *nameRegistry

	mu       sync.RWMutex
	fileName string
	claimed  bool
	frozen   bool
}

// FileName 当前文件名
func (r *ReferenceNode) FileName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fileName
}

// SetFileName 请求改名, 返回实际分配的名字
// 名字已被其他资源占用时分配候选名; 冻结后不再改变
func (r *ReferenceNode) SetFileName(requested string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen || (r.claimed && requested == r.fileName) {
		return r.fileName
	}
	previous := ""
	if r.claimed {
		previous = r.fileName
	}
	r.fileName = r.registry.claim(r, previous, requested)
	r.claimed = true
	return r.fileName
}

// Release 放弃占用的名字(下载失败时)
func (r *ReferenceNode) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed && !r.frozen {
		r.registry.release(r, r.fileName)
		r.claimed = false
	}
}

// Freeze 下载完成后冻结文件名
func (r *ReferenceNode) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen 是否已冻结
func (r *ReferenceNode) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// RelativePath 资源文件路径(相对输出目录)
func (r *ReferenceNode) RelativePath() string {
	return filepath.Join(r.DirectoryToken, ReferencesDir, r.FileName())
}

// RelativeURLFrom 从页面page到本资源的相对URL
func (r *ReferenceNode) RelativeURLFrom(page *PageNode) string {
	return page.ReferencedFileRelativeURL() + escapeSegment(r.FileName())
}

func escapeSegment(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "%2F", "/")
}
