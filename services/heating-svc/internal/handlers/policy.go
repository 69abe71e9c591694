package handlers

import (
	"heatnet/pkg/audit"
	"heatnet/pkg/auth"
	"heatnet/pkg/heatingv1"
	"heatnet/pkg/interceptors"
)

// AuthPolicy изменяющие процедуры требуют роль оператора, чтение доступно
// наблюдателю
func AuthPolicy() interceptors.AuthPolicy {
	return interceptors.AuthPolicy{
		Roles: map[string]string{
			heatingv1.HeatingServiceBuildNetworkProcedure: auth.RoleOperator,
			heatingv1.HeatingServiceSolveProcedure:        auth.RoleOperator,
			heatingv1.HeatingServiceDeleteRunProcedure:    auth.RoleOperator,
		},
	}
}

// AuditActions действия аудита по процедурам
func AuditActions() map[string]audit.Action {
	return map[string]audit.Action{
		heatingv1.HeatingServiceBuildNetworkProcedure: audit.ActionBuild,
		heatingv1.HeatingServiceSolveProcedure:        audit.ActionSolve,
		heatingv1.HeatingServiceGetRunProcedure:       audit.ActionRead,
		heatingv1.HeatingServiceDeleteRunProcedure:    audit.ActionDelete,
	}
}

// LimitedProcedures тяжёлые процедуры под ограничением частоты
func LimitedProcedures() []string {
	return []string{
		heatingv1.HeatingServiceBuildNetworkProcedure,
		heatingv1.HeatingServiceSolveProcedure,
	}
}
