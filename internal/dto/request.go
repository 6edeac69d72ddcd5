package dto

import "BucketDash/internal/repo"

type ListFilesRequest struct {
	Prefix      string           `json:"prefix"`
	PageSize    int              `json:"page_size" binding:"gte=0"`
	PageToken   string           `json:"page_token"`
	PageNumber  int              `json:"page_number" binding:"gte=0"`
	SearchTerm  string           `json:"search_term"`
	SearchScope repo.SearchScope `json:"search_scope"`
}

type DeleteItem struct {
	Key          string `json:"key" binding:"required"`
	ThumbnailKey string `json:"thumbnail_key"`
}

type DeleteFilesRequest struct {
	Items []DeleteItem `json:"items" binding:"required,min=1,dive"`
}

type FileURLRequest struct {
	Key string `json:"key" binding:"required"`
}

type ArchiveRequest struct {
	Keys   []string `json:"keys"`
	Prefix string   `json:"prefix"`
	Name   string   `json:"name"`
}

type CreateFolderRequest struct {
	FolderName    string `json:"folder_name" binding:"required"`
	CurrentPrefix string `json:"current_prefix"`
}

type DeleteFolderRequest struct {
	Prefix string `json:"prefix" binding:"required"`
}
