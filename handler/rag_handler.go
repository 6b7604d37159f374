package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/rag-be/middleware"
	"github.com/tieubaoca/rag-be/service"
	"github.com/tieubaoca/rag-be/types"
)

// HandlerOptions are the defaults applied when a request leaves them out.
type HandlerOptions struct {
	SearchMatchCount    int
	QueryMatchCount     int
	SimilarityThreshold float64
}

type RAGHandler struct {
	files     *service.FileService
	retrieval *service.RetrievalService
	rag       *service.RAGService
	ws        *service.WebSocketService
	opts      HandlerOptions
}

func NewRAGHandler(
	files *service.FileService,
	retrieval *service.RetrievalService,
	rag *service.RAGService,
	ws *service.WebSocketService,
	opts HandlerOptions,
) *RAGHandler {
	if opts.SearchMatchCount <= 0 {
		opts.SearchMatchCount = 10
	}
	if opts.QueryMatchCount <= 0 {
		opts.QueryMatchCount = service.DefaultMatchCount
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = service.DefaultSimilarityThreshold
	}
	return &RAGHandler{files: files, retrieval: retrieval, rag: rag, ws: ws, opts: opts}
}

// Register mounts the authenticated RAG routes on group.
func (h *RAGHandler) Register(group *gin.RouterGroup) {
	group.POST("/ingest", h.HandleIngest)
	group.GET("/documents", h.HandleListDocuments)
	group.DELETE("/documents/:id", h.HandleDeleteDocument)
	group.POST("/search", h.HandleSearch)
	group.POST("/query", h.HandleQuery)
	group.GET("/conversations", h.HandleListConversations)
	group.GET("/conversations/:id/messages", h.HandleListMessages)
	group.GET("/ws", h.HandleWebSocket)
}

func (h *RAGHandler) HandleIngest(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "Request must be multipart/form-data")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		fail(c, http.StatusBadRequest, "No files provided")
		return
	}

	results := h.files.IngestFiles(c.Request.Context(), middleware.UserID(c), files)
	ingested := 0
	for _, r := range results {
		if r.DocumentID != nil {
			ingested++
		}
	}
	ok(c, types.IngestResponse{Documents: results, TotalIngested: ingested})
}

func (h *RAGHandler) HandleListDocuments(c *gin.Context) {
	docs, err := h.rag.ListDocuments(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	summaries := make([]types.DocumentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = types.DocumentSummary{
			ID:        d.ID,
			Filename:  d.Filename,
			FileType:  d.FileType,
			FileSize:  d.FileSize,
			PageCount: d.PageCount,
			Metadata:  d.Metadata,
			CreatedAt: d.CreatedAt,
		}
	}
	ok(c, types.DocumentsResponse{Documents: summaries})
}

func (h *RAGHandler) HandleDeleteDocument(c *gin.Context) {
	deleted, err := h.rag.DeleteDocument(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, "Document not found or you do not have permission to delete it")
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: true, Message: "Document deleted"})
}

func (h *RAGHandler) HandleSearch(c *gin.Context) {
	var req types.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	params := types.SearchParams{
		Query:               req.Query,
		UserID:              middleware.UserID(c),
		DocumentIDs:         req.DocumentIDs,
		MatchCount:          h.opts.SearchMatchCount,
		SimilarityThreshold: h.opts.SimilarityThreshold,
	}
	if req.MatchCount != nil {
		params.MatchCount = *req.MatchCount
	}
	if req.SimilarityThreshold != nil {
		params.SimilarityThreshold = *req.SimilarityThreshold
	}

	results, err := h.retrieval.Search(c.Request.Context(), params)
	if err != nil {
		failErr(c, err)
		return
	}
	hits := make([]types.SearchHit, len(results))
	for i, r := range results {
		hits[i] = types.SearchHit{
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Similarity: r.Similarity,
			Metadata:   r.ChunkMetadata,
		}
	}
	ok(c, types.SearchResponse{Results: hits, Total: len(hits)})
}

func (h *RAGHandler) HandleQuery(c *gin.Context) {
	var body types.QueryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	req := types.QueryRequest{
		Question:       body.Question,
		UserID:         middleware.UserID(c),
		ConversationID: body.ConversationID,
		DocumentIDs:    body.DocumentIDs,
		MatchCount:     h.opts.QueryMatchCount,
	}
	if body.MatchCount != nil {
		req.MatchCount = *body.MatchCount
	}

	res, err := h.rag.Query(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, service.ToQueryResponse(res))
}

func (h *RAGHandler) HandleListConversations(c *gin.Context) {
	convs, err := h.rag.ListConversations(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, types.ConversationsResponse{Conversations: convs})
}

func (h *RAGHandler) HandleListMessages(c *gin.Context) {
	msgs, err := h.rag.ListMessages(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, types.MessagesResponse{Messages: msgs})
}

func (h *RAGHandler) HandleWebSocket(c *gin.Context) {
	h.ws.HandleQuery(c.Writer, c.Request, middleware.UserID(c))
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, types.DataResponse{Status: true, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, types.DataResponse{Status: false, Message: message})
}

// failErr maps service errors onto HTTP statuses. Internal details are not
// sent to the client.
func failErr(c *gin.Context, err error) {
	switch {
	case types.IsValidation(err):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		fail(c, http.StatusNotFound, "Not found")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}
