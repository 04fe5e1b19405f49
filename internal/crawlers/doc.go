// Package crawlers 提供网页抓取(保存为离线副本)的核心引擎
//
// # 概述
//
// 给定一个根URL, 引擎按策略递归发现子页面和框架, 把每个页面引用的资源
// (图片、样式表、脚本、字体、链接到的文档)下载到本地, 并改写所有链接,
// 使保存的页面可以离线浏览。
//
// 一次抓取分为三个阶段:
//   - 发现: 单协程递归获取页面, 构建资源图(ResourceGraph)
//   - 下载: 资源按绝对URL去重后交给固定并发的下载队列(DownloadQueue)
//   - 输出: 改写样式表中的url(), 再逐个页面改写链接并写盘
//
// # 输出目录结构
//
//	<dest>/<根页面文件>
//	<dest>/<目录令牌>/<子页面文件>          子页面、框架、根页面副本
//	<dest>/<目录令牌>/references/<资源文件>  所有资源
//
// 目录令牌每次抓取随机生成, 同一输出目录可以保存多次抓取。
//
// # 核心组件
//
// ## Orchestrator
//
// 抓取入口, 串联三个阶段:
//
//	fetcher := NewCollyFetcher(FetcherConfig{UserAgent: "PageCapture/1.0"})
//	o := NewOrchestrator(fetcher, WithResourceMonitor(monitor))
//	rootFile, err := o.Capture(ctx, "https://example.com/", "./output", policy, progress)
//
// 根页面无法获取时返回 *models.CaptureError; 取消返回 models.ErrCaptureCancelled;
// 其余错误记录在 Errors() 中, 除非策略设置了 ThrowOnFailure。
//
// ## CrawlPolicy
//
// 深度、页面数、域名、大小、类型过滤的判断, 以及一次抓取内共享的
// 已发现页面表和超时主机表。
//
// ## ContentClassifier
//
// 判断URL的内容类型: .pdf 直接判定, 然后依次是响应头缓存(LRUHeaderCache)、
// HEAD/GET探测、扩展名表。
//
// ## ResourceGraph
//
// 页面(PageNode)和资源(ReferenceNode)的关系, 以及它们的文件名和相对URL。
// 资源文件名通过共享的名字表保证在 references 目录内唯一。
//
// ## LinkRewriter
//
// 为资源占用文件名、按实际内容类型修正扩展名、改写样式表。
//
// ## 获取器
//
//   - CollyFetcher: 基于Colly的HTTP获取, 支持 file 协议、brotli/deflate解压、字符集转换
//   - RodRenderer: 基于go-rod的浏览器渲染, 用于需要执行脚本的页面
//   - CompositeFetcher: 渲染失败时退回HTTP
//
// # 并发安全
//
//   - CrawlPolicy: sync.RWMutex + atomic计数
//   - ResourceGraph/PageNode/ReferenceNode: sync.RWMutex
//   - LinkRewriter: 所有改名在同一把锁下进行
//   - DownloadQueue: errgroup + sync.Mutex
//
// 同一个 Orchestrator 实例不支持并发调用 Capture。
package crawlers
