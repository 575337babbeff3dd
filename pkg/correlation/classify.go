package correlation

import (
	"net/http"
	"strconv"

	"github.com/deptrack/deptrack/pkg/domain"
)

// classify fills the record's result from a terminal response and, when the
// callee identified itself as a distinct tracked component, annotates the
// target and call kind. Reading the correlation header is best-effort: any
// failure is logged and classification falls back to the status-code-only
// result.
func (e *Engine) classify(record *domain.DependencyRecord, resp *http.Response) {
	status := resp.StatusCode
	if status > 0 {
		record.ResultCode = strconv.Itoa(status)
	} else {
		record.ResultCode = ""
	}
	record.Success = status > 0 && status < 400

	targetID, err := TargetAppID(resp.Header)
	if err != nil {
		e.logger.Debug("unreadable response correlation header", "error", err)
		return
	}
	if targetID == "" || e.resolver == nil {
		return
	}
	localID, ok := e.resolver.AppID(e.settings.InstrumentationKey)
	if !ok {
		return
	}
	if targetID != localID {
		record.Target = record.Target + " | " + targetID
		record.Type = domain.DependencyTypeTrackedComponent
	}
}
