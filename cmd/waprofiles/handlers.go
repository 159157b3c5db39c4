package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/models"
	"waprofiles/internal/service"
	"waprofiles/internal/validation"
	pkgconstants "waprofiles/pkg/constants"
	"waprofiles/pkg/qrcode"
	"waprofiles/pkg/whatsapp"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const qrTimeoutMessage = "Request timeout. QR code generation is taking too long."

// publicProfile hides the access token; it is only returned on creation.
func publicProfile(p *models.Profile) *models.Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Token = ""
	return &out
}

func publicStatus(st models.ProfileStatus) models.ProfileStatus {
	st.Profile = publicProfile(st.Profile)
	return st
}

func (s *Server) requestLogger(r *http.Request) *logrus.Entry {
	entry := s.logger.WithField(service.LogFieldRoute, r.URL.Path)
	if caller, ok := authenticatedProfile(r.Context()); ok {
		entry = entry.WithField("caller_profile_id", caller.ID)
	}
	return entry
}

func (s *Server) handleCreateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in validation.ProfileInput
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateProfileInput(in, true); err != nil {
			s.writeError(w, r, err)
			return
		}

		var webhookURL string
		if in.WebhookURL != nil {
			webhookURL = *in.WebhookURL
		}
		enable := in.EnableWebhook != nil && *in.EnableWebhook

		profile, err := s.deps.Profiles.Create(r.Context(), *in.Name, webhookURL, enable)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeSuccess(w, r, http.StatusCreated, "Profile created successfully", profile)
	}
}

func (s *Server) handleListProfiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := s.deps.Profiles.List(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make([]models.ProfileStatus, 0, len(profiles))
		for _, p := range profiles {
			out = append(out, publicStatus(p))
		}
		s.writeSuccess(w, r, http.StatusOK, "", out)
	}
}

func (s *Server) handleGetProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.ParsePathID(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status, err := s.deps.Profiles.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeSuccess(w, r, http.StatusOK, "", publicStatus(*status))
	}
}

func (s *Server) handleUpdateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.ParsePathID(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var in validation.ProfileInput
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateProfileInput(in, false); err != nil {
			s.writeError(w, r, err)
			return
		}

		profile, err := s.deps.Profiles.Update(r.Context(), id, models.ProfileUpdate{
			Name:          in.Name,
			WebhookURL:    in.WebhookURL,
			EnableWebhook: in.EnableWebhook,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeSuccess(w, r, http.StatusOK, "Profile updated successfully", publicProfile(profile))
	}
}

func (s *Server) handleDeleteProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.ParsePathID(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.deps.Profiles.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.requestLogger(r).WithField(service.LogFieldProfileID, id).Info("Profile deleted via API")
		s.writeSuccess(w, r, http.StatusOK, "Profile deleted successfully", nil)
	}
}

type pairingResult struct {
	code string
	err  error
}

// handleQRCode returns the pending pairing code of a profile. The whole
// acquisition is capped by the QR request timeout even if the provider keeps
// working in the background.
func (s *Server) handleQRCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.ParsePathID(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.qrTimeout)
		defer cancel()

		done := make(chan pairingResult, 1)
		go func() {
			code, err := s.deps.Profiles.PairingCode(ctx, id)
			done <- pairingResult{code: code, err: err}
		}()

		var res pairingResult
		select {
		case res = <-done:
		case <-ctx.Done():
			if r.Context().Err() != nil {
				return
			}
			res.err = context.DeadlineExceeded
		}

		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				res.err = apperrors.NewTimeoutError("qr code", s.qrTimeout.String()).WithUserMessage(qrTimeoutMessage)
			}
			s.writeError(w, r, res.err)
			return
		}

		if r.URL.Query().Get("format") == "png" {
			png, err := qrcode.PNG(res.code, pkgconstants.DefaultQRImageSize)
			if err != nil {
				s.writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to render QR code"))
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(png); err != nil {
				s.logger.WithError(err).Warn("Failed to write QR image")
			}
			return
		}

		image, err := qrcode.DataURL(res.code, pkgconstants.DefaultQRImageSize)
		if err != nil {
			s.writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to render QR code"))
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		s.writeSuccess(w, r, http.StatusOK, "", map[string]string{
			"qrCode":  res.code,
			"qrImage": image,
		})
	}
}

func (s *Server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.ParsePathID(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.deps.Profiles.Logout(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.requestLogger(r).WithField(service.LogFieldProfileID, id).Info("Profile logged out via API")
		s.writeSuccess(w, r, http.StatusOK, "Profile logged out successfully", nil)
	}
}

// sendInput reads a send request from the JSON body, or from the query
// string for GET requests.
func sendInput(w http.ResponseWriter, r *http.Request) (validation.SendInput, error) {
	var in validation.SendInput
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		in.ProfileID = json.Number(q.Get("profileId"))
		in.Phone = q.Get("phone")
		in.GroupID = q.Get("groupId")
		in.Message = q.Get("message")
		return in, nil
	}
	err := decodeJSON(w, r, &in)
	return in, err
}

func (s *Server) handleSend(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := sendInput(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		profileID, err := validation.ValidateSendInput(in, group)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		profile, err := s.deps.Profiles.Lookup(r.Context(), profileID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var (
			sent    *models.SentMessage
			message string
		)
		if group {
			sent, err = s.deps.Messages.SendGroup(r.Context(), profile, in.GroupID, in.Message)
			message = "Group message sent successfully"
		} else {
			sent, err = s.deps.Messages.SendDirect(r.Context(), profile, in.Phone, in.Message)
			message = "Message sent successfully"
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeSuccess(w, r, http.StatusOK, message, sent)
	}
}

// profileFromQuery resolves ?profileId= to a stored profile.
func (s *Server) profileFromQuery(r *http.Request) (*models.Profile, error) {
	id, err := validation.ParseProfileID(r.URL.Query().Get("profileId"))
	if err != nil {
		return nil, err
	}
	return s.deps.Profiles.Lookup(r.Context(), id)
}

func (s *Server) handleListGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := s.profileFromQuery(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		groups, err := s.deps.Directory.ListGroups(r.Context(), profile)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.requestLogger(r).WithFields(logrus.Fields{
			service.LogFieldProfileID: profile.ID,
			service.LogFieldCount:     len(groups),
		}).Debug("Listed groups")
		s.writeSuccess(w, r, http.StatusOK, "", groups)
	}
}

func (s *Server) handleListContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := s.profileFromQuery(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		contacts, err := s.deps.Directory.ListContacts(r.Context(), profile)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.requestLogger(r).WithFields(logrus.Fields{
			service.LogFieldProfileID: profile.ID,
			service.LogFieldCount:     len(contacts),
		}).Debug("Listed contacts")
		s.writeSuccess(w, r, http.StatusOK, "", contacts)
	}
}

// ignorableWebhookError reports provider events that need no action here.
func ignorableWebhookError(err error) bool {
	var unhandled *whatsapp.ErrUnhandledEvent
	return errors.Is(err, whatsapp.ErrUnknownSession) || errors.As(err, &unhandled)
}
