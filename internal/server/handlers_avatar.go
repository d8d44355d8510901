package server

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"imagehoster/internal/chain"
)

var avatarSizes = map[string]int{
	"small":  64,
	"medium": 128,
	"large":  512,
}

const defaultAvatarSize = "medium"

var httpURLPattern = regexp.MustCompile(`^https?://`)

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tag(ctx, "handler", "avatar")

	username := chi.URLParam(r, "username")
	if username == "" {
		s.writeErrorReq(w, r, missingParam("username"))
		return
	}
	size, ok := avatarSizes[chi.URLParam(r, "size")]
	if !ok {
		size = avatarSizes[defaultAvatarSize]
	}

	account, err := s.accounts.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, chain.ErrAccountNotFound) {
			s.writeErrorReq(w, r, makeAPIError(KindNoSuchAccount, err))
			return
		}
		s.writeErrorReq(w, r, internalError(err))
		return
	}

	avatarURL := s.defaultAvatar
	profile, err := account.ParseProfile()
	if err != nil {
		LoggerFrom(ctx).Debug("unable to parse json_metadata", "account", account.Name, "error", err)
	}
	if httpURLPattern.MatchString(profile.ProfileImage) {
		avatarURL = profile.ProfileImage
	}

	// http.Redirect would clean the embedded "//" out of the target URL.
	w.Header().Set("Cache-Control", cacheControlShort)
	w.Header().Set("Location", fmt.Sprintf("/%dx%d/%s", size, size, avatarURL))
	w.WriteHeader(http.StatusFound)
}
