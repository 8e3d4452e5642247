package refresh

import (
	"github.com/hondanahq/hondana/pkg/jobs"
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers refresh and proposal routes on the api
// group. The proposal list hangs off the job that produced it.
func RegisterRoutesWithGroup(g *echo.Group, jobService *jobs.Service, proposalService *ProposalService) {
	h := &handler{
		jobService:      jobService,
		proposalService: proposalService,
	}

	g.POST("/metadata/refresh", h.createRefreshJob)
	g.GET("/jobs/:id/proposals", h.listJobProposals)
	g.POST("/proposals/:id/accept", h.acceptProposal)
	g.POST("/proposals/:id/reject", h.rejectProposal)
}
