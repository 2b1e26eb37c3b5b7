// Package eligibility 资格扫描: 按游标分批修正 EnabledNamespace / Repository 状态
package eligibility

import (
	"code-indexer/internal/model"
	"code-indexer/pkg/constants"
)

// Rules 命名空间资格规则, saas 看订阅, instance 看实例许可
type Rules struct {
	Mode                       string
	InstanceLicensed           bool
	InstanceDuoFeaturesEnabled bool
}

func (r Rules) instanceMode() bool {
	return r.Mode == constants.EligibilityModeInstance
}

// InstanceEligible saas 模式恒为 true
func (r Rules) InstanceEligible() bool {
	if !r.instanceMode() {
		return true
	}
	return r.InstanceLicensed && r.InstanceDuoFeaturesEnabled
}

// NamespaceEligible 顶层命名空间是否可以启用代码索引
func (r Rules) NamespaceEligible(ns *model.Namespace) bool {
	if ns == nil || ns.ParentID != nil {
		return false
	}
	if r.instanceMode() {
		return r.InstanceEligible() && ns.DuoFeaturesEnabled
	}
	return ns.SubscriptionActive && ns.DuoFeaturesEnabled
}
