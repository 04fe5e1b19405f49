package models

// DownloadJob 资源下载任务
// 用途:
//   - 由编排器为每个去重后的资源创建
//   - 进入 DownloadQueue 后由工作协程处理
type DownloadJob struct {
	// URL 资源的绝对URL
	URL string

	// DestinationPath 目标文件路径(下载时可能因冲突或扩展名修正而变化)
	DestinationPath string

	// Progress 此任务在整体进度中的份额
	Progress ProgressSink

	// Payload 任务处理器使用的附加数据(如资源节点)
	Payload interface{}
}
