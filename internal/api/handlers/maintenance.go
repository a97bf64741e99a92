// maintenance.go — обработчик POST /api/maintenance/reconcile.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/gallery/internal/api/errors"
	"github.com/bigkaa/gallery/internal/service"
)

// ReconcileRunner — запуск сверки.
type ReconcileRunner interface {
	// RunOnce выполняет один цикл сверки.
	// Возвращает отчёт и флаг "уже выполняется".
	RunOnce() (*service.ReconcileReport, bool)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик обслуживания.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile синхронно выполняет сверку и возвращает отчёт.
// Если сверка уже выполняется — 409.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, _ *http.Request) {
	report, inProgress := h.reconciler.RunOnce()
	if inProgress {
		apierrors.ReconcileInProgress(w)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
