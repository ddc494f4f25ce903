package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"natours-api/middleware"
	"natours-api/models"
	"natours-api/repositories"
	"natours-api/services"
	"natours-api/utils"
)

var errPasswordUpdate = utils.BadRequest("This route is not for password updates. Please use /updateMyPassword.")

type UserController struct {
	users   *repositories.UserRepository
	images  *services.ImageService
	cache   *services.CacheService
	handler *ResourceHandler[models.User, *models.User]
}

func NewUserController(users *repositories.UserRepository, images *services.ImageService, cache *services.CacheService) *UserController {
	uc := &UserController{users: users, images: images, cache: cache}
	uc.handler = NewResourceHandler[models.User, *models.User](users, ResourceOptions[models.User]{
		Singular:   "user",
		Plural:     "users",
		Writable:   models.UserUpdateColumns,
		AfterWrite: uc.invalidate,
	})
	return uc
}

// invalidate drops cached tour reads, which embed guide profiles.
func (uc *UserController) invalidate(c *gin.Context) {
	_ = uc.cache.InvalidateTours(c.Request.Context())
}

func (uc *UserController) GetMe(c *gin.Context) {
	utils.SendData(c, http.StatusOK, "user", middleware.CurrentUser(c))
}

// UpdateMyData changes name, email and photo of the caller. The photo can
// be uploaded as a multipart file.
func (uc *UserController) UpdateMyData(c *gin.Context) {
	user := *middleware.CurrentUser(c)

	var (
		patch Patch
		photo string
	)
	if strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
		form, err := c.MultipartForm()
		if err != nil {
			_ = c.Error(err)
			return
		}
		patch = formPatch(form.Value)
		if photos := form.File["photo"]; len(photos) > 0 {
			name, err := uc.images.SaveUserPhoto(user.ID, photos[0])
			if err != nil {
				_ = c.Error(err)
				return
			}
			photo = name
			patch["photo"], _ = json.Marshal(name)
		}
	} else {
		var err error
		if patch, err = DecodePatch(c); err != nil {
			_ = c.Error(err)
			return
		}
	}

	if err := uc.applyMyData(c, &user, patch); err != nil {
		if photo != "" {
			uc.images.DiscardUserPhoto(photo)
		}
		_ = c.Error(err)
		return
	}
	uc.invalidate(c)
	utils.SendData(c, http.StatusOK, "user", &user)
}

func (uc *UserController) applyMyData(c *gin.Context, user *models.User, patch Patch) error {
	if _, ok := patch["password"]; ok {
		return errPasswordUpdate
	}
	if _, ok := patch["passwordConfirm"]; ok {
		return errPasswordUpdate
	}

	patch = patch.Writable(models.MyDataColumns)
	if err := patch.MergeInto(user); err != nil {
		return err
	}
	user.Prepare()
	if err := user.Validate(); err != nil {
		return err
	}

	columns, _ := models.MyDataColumns.Columns(patch.Keys())
	return uc.users.Update(c.Request.Context(), user, columns)
}

// DeleteMyAccount deactivates the caller. The account disappears from every
// read but stays stored.
func (uc *UserController) DeleteMyAccount(c *gin.Context) {
	if err := uc.users.Deactivate(c.Request.Context(), middleware.CurrentUser(c).ID); err != nil {
		_ = c.Error(err)
		return
	}
	uc.invalidate(c)
	utils.SendNoContent(c)
}

func (uc *UserController) GetAllUsers(c *gin.Context) {
	uc.handler.GetAll(c)
}

func (uc *UserController) GetUser(c *gin.Context) {
	uc.handler.GetOne(c)
}

// UpdateUser is the admin patch. Password attributes are not writable
// through it.
func (uc *UserController) UpdateUser(c *gin.Context) {
	uc.handler.UpdateOne(c)
}

func (uc *UserController) DeleteUser(c *gin.Context) {
	uc.handler.DeleteOne(c)
}
