package harvest

import "github.com/John-Robertt/geeharvest/internal/domain"

// Observer 把“进度/单条结果”从核心执行流程中解耦出来。
//
// 约束：
// - harvest 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - OnItemDone 只在聚合 goroutine 中调用；但实现方可能还有自己的 ticker，仍需并发安全。
type Observer interface {
	// OnStart 在开始派发任务前调用。
	OnStart(total, workers int)
	// OnItemDone 在某个 URL 处理完成（成功或失败）时调用，done 从 1 开始递增。
	OnItemDone(done, total int, o Outcome)
	// OnFinish 在全部 URL 处理完、报告定稿后调用。
	OnFinish(rep domain.HarvestReport)
}

// NopObserver 忽略全部事件。
type NopObserver struct{}

func (NopObserver) OnStart(int, int) {}
func (NopObserver) OnItemDone(int, int, Outcome) {}
func (NopObserver) OnFinish(domain.HarvestReport) {}
